// Package validation validates records before they are persisted.
//
// Struct-level rules are declared with go-playground/validator tags on the
// models; record-specific rules with fixed user-facing messages are added with
// the fluent Validator.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"extsys/internal/common/errors"
)

var (
	structValidator *validator.Validate
	structOnce      sync.Once
)

func engine() *validator.Validate {
	structOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// ValidateStruct validates s against its `validate` tags. The returned error is a
// validation AppError listing every failing field.
func ValidateStruct(s interface{}) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.InternalError("struct validation failed", err)
	}

	v := NewValidator()
	for _, fe := range fieldErrors {
		v.addError("%s", describe(fe))
	}
	return v.Error()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// Validator accumulates validation errors
type Validator struct {
	errors []string
	prefix string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithPrefix creates a new validator with a prefix for error messages
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

// RequireString validates that a string is not empty
func (v *Validator) RequireString(value, name string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.addError("%s is required", name)
	}
	return v
}

// RequireURL validates that a string is an absolute URL
func (v *Validator) RequireURL(value, name string) *Validator {
	if err := engine().Var(value, "required,url"); err != nil {
		v.addError("%s must be a valid URL", name)
	}
	return v
}

// RequireOneOf validates that a value is one of the allowed values
func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.addError("%s must be one of: %s", name, strings.Join(allowed, ", "))
	return v
}

// RequireMax records message verbatim when value exceeds max
func (v *Validator) RequireMax(value, max int, message string) *Validator {
	if value > max {
		v.addError("%s", message)
	}
	return v
}

// Validate runs a custom validation function
func (v *Validator) Validate(fn func() error) *Validator {
	if err := fn(); err != nil {
		v.errors = append(v.errors, errors.Message(err))
	}
	return v
}

// ValidateIf runs a validation function if a condition is true
func (v *Validator) ValidateIf(condition bool, fn func() error) *Validator {
	if condition {
		return v.Validate(fn)
	}
	return v
}

func (v *Validator) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = fmt.Sprintf("%s: %s", v.prefix, msg)
	}
	v.errors = append(v.errors, msg)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the accumulated failures as a validation AppError, or nil
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return errors.ValidationError(strings.Join(v.errors, "; "))
}
