// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/remix-engine/internal/i18n"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := negotiateLanguage(c.GetHeader("Accept-Language"), i18n.GetSupportedLanguages())

		// Set language in context
		c.Set("lang", lang)
		c.Next()
	}
}

// negotiateLanguage returns the first Accept-Language tag with a loaded
// locale, trying the full tag before its base language. Quality values are
// ignored; browsers already list tags in preference order.
func negotiateLanguage(header string, supported []string) string {
	available := make(map[string]bool, len(supported))
	for _, lang := range supported {
		available[lang] = true
	}

	// Handle cases like "zh-TW,zh;q=0.9,en;q=0.8"
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" {
			continue
		}
		tag = strings.ReplaceAll(tag, "-", "_")
		if tag == "zh_Hant" {
			tag = "zh_TW"
		}

		if available[tag] {
			return tag
		}
		if base, _, found := strings.Cut(tag, "_"); found && available[base] {
			return base
		}
	}
	return "en" // Default language
}
