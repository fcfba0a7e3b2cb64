// Package validation checks submitted forms against their struct tags.
// Fields are reported by their `form` tag name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CodeRule accepts a six digit one-time code.
const CodeRule = "required,digits=6"

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("digits", validateDigits)
}

// validateDigits implements digits=N: exactly N ASCII digits, no sign.
func validateDigits(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s := fl.Field().String()
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Check validates form and returns the failures in field order, one per
// field. A valid form yields nil.
func Check(form any) []FieldError {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "form", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

// Map returns the failures of form as field -> message. It is never nil.
func Map(form any) map[string]string {
	errs := map[string]string{}
	for _, fe := range Check(form) {
		if _, seen := errs[fe.Field]; !seen {
			errs[fe.Field] = fe.Message
		}
	}
	return errs
}

// Var reports whether value satisfies rule.
func Var(value any, rule string) bool {
	return validate.Var(value, rule) == nil
}

func message(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Please enter a valid email address."
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", name, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", name, fe.Param())
	case "digits":
		return fmt.Sprintf("The %s must be %s digits.", name, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", name)
	default:
		return fmt.Sprintf("The %s is invalid.", name)
	}
}
