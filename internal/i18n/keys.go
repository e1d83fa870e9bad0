// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAdminAccessDenied = "admin.access_denied"

	// Templates
	KeyTemplateCreated    = "template.created"
	KeyTemplateNotFound   = "template.not_found"
	KeyTemplateInvalid    = "template.invalid"
	KeyTemplateMissingVar = "template.missing_variable"
	KeyLineageCorrupt     = "lineage.corrupt"
	KeyLineageVerified    = "lineage.verified"

	// Usage ledger
	KeyUsageRecorded  = "usage.recorded"
	KeyUsageDuplicate = "usage.duplicate"
	KeyUsageNotFound  = "usage.not_found"

	// Royalties
	KeyStatementExported  = "royalty.statement_exported"
	KeyDeadLetterNotFound = "dead_letter.not_found"
	KeyDeadLetterRedriven = "dead_letter.redriven"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// Rate limiting
	KeyRateLimited = "rate_limit.exceeded"
)
