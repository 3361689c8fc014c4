// Package web defines common components for a web application.
package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Response holds the common response type for all APIs.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Error wraps a given err into the response envelope.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// GetErrorMsg returns the human readable suffix for a failed binding rule.
// Callers prepend the field name.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "min":
		return " must be greater than or equal to " + fe.Param()
	case "max":
		return " must be less than or equal to " + fe.Param()
	case "uuid":
		return " must be a valid uuid"
	case "symbol":
		return " is not a valid symbol"
	}

	return " is invalid"
}

// BindingError describes why request binding failed. Validation failures
// name the first offending field, anything else is a malformed request.
func BindingError(err error) Response {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		field := ve[0]
		return Response{Error: field.Field() + GetErrorMsg(field)}
	}

	return Response{Error: "invalid request"}
}
