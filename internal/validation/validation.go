// Package validation checks request inputs against struct tag rules and turns
// failures into domain.ValidationError values carrying user-facing messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/splax/todo/internal/domain"
)

type ruleKey struct {
	field string
	rule  string
}

var fieldMessages = map[ruleKey]string{
	{field: "title", rule: "min"}:         "Title must be at least 5 characters long",
	{field: "dueDate", rule: "required"}:  "Please choose a due date",
	{field: "dueDate", rule: "date"}:      "Please enter a valid due date",
	{field: "password", rule: "min"}:      "Password must be at least 8 characters long",
	{field: "email", rule: "unique"}:      "An account with this email already exists",
	{field: "completed", rule: "boolean"}: "Completed must be true or false",
}

var ruleMessages = map[string]string{
	"required": "Field %s cannot be empty",
	"email":    "Please enter a valid email",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// Message resolves the user-facing text for a failed (field, rule) pair.
func Message(field, rule string) string {
	if msg, ok := fieldMessages[ruleKey{field: field, rule: rule}]; ok {
		return msg
	}
	if format, ok := ruleMessages[rule]; ok {
		if strings.Contains(format, "%s") {
			return fmt.Sprintf(format, field)
		}
		return format
	}
	return fmt.Sprintf("Please enter a valid value for field %s", field)
}

// Field builds a FieldError with its resolved message.
func Field(field, rule string) domain.FieldError {
	return domain.FieldError{Field: field, Rule: rule, Message: Message(field, rule)}
}

// Fail returns a ValidationError for a single failed rule.
func Fail(field, rule string) error {
	return &domain.ValidationError{Fields: []domain.FieldError{Field(field, rule)}}
}

// Struct validates v using its `validate` tags. Rule failures come back as
// *domain.ValidationError; anything else (such as a non-struct argument) is
// returned unchanged.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}
	out := &domain.ValidationError{Fields: make([]domain.FieldError, 0, len(failures))}
	for _, fe := range failures {
		out.Fields = append(out.Fields, Field(fe.Field(), fe.Tag()))
	}
	return out
}

// Merge appends extra field failures to err. err may be nil or a
// *domain.ValidationError; other errors are returned as-is.
func Merge(err error, extra ...domain.FieldError) error {
	if len(extra) == 0 {
		return err
	}
	if err == nil {
		return &domain.ValidationError{Fields: extra}
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	verr.Fields = append(verr.Fields, extra...)
	return verr
}
