// Package validator wraps go-playground/validator for command input checks.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (f FieldError) String() string {
	if f.Param == "" {
		return fmt.Sprintf("%s: %s", f.Field, f.Tag)
	}
	return fmt.Sprintf("%s: %s=%s", f.Field, f.Tag, f.Param)
}

// Error collects every failed rule of a struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.String())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ValidateStruct validates s against its `validate` tags.
// It returns nil or an *Error listing every failed field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
