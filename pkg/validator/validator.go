// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shieldgate/gateway/pkg/domain/apikey"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("key_role", validateKeyRole)
	_ = v.RegisterValidation("key_status", validateKeyStatus)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}

	return result
}

// validateKeyRole validates that a string is a valid API key role.
func validateKeyRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return value == apikey.RoleAdmin || value == apikey.RoleClient
}

// validateKeyStatus validates that a string is a valid API key status.
func validateKeyStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	switch apikey.Status(value) {
	case apikey.StatusActive, apikey.StatusBlocked, apikey.StatusRevoked:
		return true
	}
	return false
}

// formatErrorMessage converts a validator error into a human-readable message.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "email":
		return "must be a valid email address"
	case "ip":
		return "must be a valid IP address"
	case "key_role":
		return fmt.Sprintf("must be one of: %s, %s", apikey.RoleAdmin, apikey.RoleClient)
	case "key_status":
		return "must be one of: active, blocked, revoked"
	default:
		return fmt.Sprintf("failed validation: %s", e.Tag())
	}
}

// toSnakeCase converts CamelCase field names to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
