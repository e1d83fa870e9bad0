// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/utils"
)

// respondError maps a service error onto the API envelope. notFoundKey is
// the translation used when err is a NotFound.
func respondError(c *gin.Context, err error, notFoundKey string) {
	lang := utils.GetLangFromContext(c)

	switch {
	case apperrors.IsValidation(err):
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			utils.ValidationErrorResponse(c, utils.GetValidationErrors(fieldErrs))
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)

	case apperrors.IsNotFound(err):
		utils.NotFoundResponse(c, notFoundKey, gin.H{"reason": err.Error()})

	case apperrors.IsMissingVariable(err):
		name, _ := apperrors.MissingVariableName(err)
		utils.UnprocessableResponse(c, "MISSING_VARIABLE", i18n.T(lang, i18n.KeyTemplateMissingVar, name), gin.H{"name": name})

	case apperrors.IsCorruptLineage(err):
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Corrupt lineage")
		utils.ErrorResponse(c, http.StatusInternalServerError, "CORRUPT_LINEAGE", i18n.T(lang, i18n.KeyLineageCorrupt), gin.H{"reason": err.Error()})

	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// currentUserID reads the authenticated caller. It writes a 401 and returns
// false when there is none.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}
