// Package validation turns validator/v10 failures into field errors that the
// API layer reports as 400 responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error describes a single invalid field.
type Error struct {
	Field   string
	Message string
}

func (e Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Errors is every field that failed validation, in struct order.
type Errors []Error

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// Fields maps each field to its message for problem responses.
func (e Errors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		out[fe.Field] = fe.Message
	}
	return out
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var single Error
	var multi Errors
	return errors.As(err, &single) || errors.As(err, &multi)
}

// New returns a validator that reports fields by their JSON names.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates s and converts failures to Errors. Non-validation errors
// (such as passing a nil pointer) are returned unchanged.
func Struct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Error{Field: jsonName(fe.Field()), Message: message(fe)})
	}
	return out
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "must match " + jsonName(fe.Param())
	case "strongpassword":
		return "must be 8-50 characters of letters, digits or @#% with at least one lowercase letter, uppercase letter, digit and one of @#%"
	case "ulid":
		return "must be a valid identifier"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
