// Package httputil provides HTTP response helpers and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// JSON writes v without an envelope.
func JSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes {"data": v}.
func Success(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

// Error writes {"error": {"message": message}}.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Message: message}})
}

// ValidationError writes a 400 listing every rejected field.
func ValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Message: "validation error"}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			body.Details = append(body.Details, FieldError{
				Field:   fe.Field(),
				Message: describe(fe),
			})
		}
	} else {
		body.Details = []FieldError{{Message: err.Error()}}
	}

	writeJSON(w, http.StatusBadRequest, map[string]any{"error": body})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " long"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a URL"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
