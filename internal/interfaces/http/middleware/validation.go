package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator reports binding failures by the json (or form) name the
// client sent.
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(wireName)
	}
}

func wireName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return fld.Name
}

// HandleValidationError writes a 400 VALIDATION_ERROR. Field failures are
// listed one per field; anything else (bad JSON, wrong types) becomes a
// single "Malformed request" message.
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, c.GetString(logger.GinRequestIDKey)))
}

func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return dto.NewValidationErrorResponse("Malformed request: "+err.Error(), requestID, nil)
	}
	details := make([]dto.ValidationDetail, len(fieldErrs))
	for i, fe := range fieldErrs {
		details[i] = dto.ValidationDetail{Field: fe.Field(), Message: describe(fe)}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

var tagMessages = map[string]func(fe validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"uuid":     func(validator.FieldError) string { return "Invalid UUID format" },
	"dive":     func(validator.FieldError) string { return "Contains an invalid element" },
	"oneof":    func(fe validator.FieldError) string { return "Must be one of: " + fe.Param() },
	"gte":      func(fe validator.FieldError) string { return "Must be greater than or equal to " + fe.Param() },
	"lte":      func(fe validator.FieldError) string { return "Must be less than or equal to " + fe.Param() },
	"len":      func(fe validator.FieldError) string { return "Must be exactly " + fe.Param() + " characters" },
	"datetime": func(fe validator.FieldError) string { return "Must match the date layout " + fe.Param() },
	"min":      func(fe validator.FieldError) string { return bound("at least", fe) },
	"max":      func(fe validator.FieldError) string { return bound("at most", fe) },
	"gt":       func(fe validator.FieldError) string { return "Must be greater than " + fe.Param() },
}

func describe(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg(fe)
	}
	return "Invalid value"
}

func bound(word string, fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return "Must be " + word + " " + fe.Param() + " characters"
	}
	return "Must be " + word + " " + fe.Param()
}
