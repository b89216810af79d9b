// Package validation checks request structs with go-playground/validator and
// reports the first failure as a models.ValidationError naming the field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/disasterwatch/disasterwatch/internal/models"
)

// Validator wraps a configured validator.Validate. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the domain enum tags registered:
// category, severity, status and role. It also registers maxbytes, which
// limits the encoded length of a string where max would count runes.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report failures under the JSON name callers actually send.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enums := map[string]func(string) error{
		"category": func(s string) error { _, err := models.ParseCategory(s); return err },
		"severity": func(s string) error { _, err := models.ParseSeverity(s); return err },
		"status":   func(s string) error { _, err := models.ParseStatus(s); return err },
		"role":     func(s string) error { _, err := models.ParseRole(s); return err },
	}
	for tag, parse := range enums {
		// Registration only fails for an empty tag or nil func.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return parse(fl.Field().String()) == nil
		})
	}

	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})

	return &Validator{validate: v}
}

// Struct validates s and returns nil or a models.ValidationError for the
// first failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return translate(fieldErrs[0])
	}
	return fmt.Errorf("validate: %w", err)
}

func translate(fe validator.FieldError) models.ValidationError {
	field := fe.Field()
	if parts := strings.Split(fe.Namespace(), "."); len(parts) > 2 {
		// A nested failure (coordinates.latitude) is reported against the
		// top-level field the caller sent, so a bad pair is "coordinates".
		field = parts[1]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		msg = fmt.Sprintf("must be at least %s characters", fe.Param())
	case "maxbytes":
		msg = fmt.Sprintf("must be at most %s bytes", fe.Param())
	case "email":
		msg = "must be a valid email address"
	case "gte", "lte":
		msg = "is out of range"
	case "category":
		msg = "must be one of " + joinEnum(models.Categories)
	case "severity":
		msg = "must be one of " + joinEnum(models.Severities)
	case "status":
		msg = "must be one of " + joinEnum(models.Statuses)
	case "role":
		msg = "must be one of USER, MODERATOR, ADMIN"
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return models.ValidationError{Field: field, Message: msg}
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
