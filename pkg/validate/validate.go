// Package validate checks request structs against their `validate` tags.
package validate

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates the struct's `validate` tags. Failures come back as a
// 400 HTTP error naming each failed field.
func Struct[T any](value T) error {
	if err := validate.Struct(value); err != nil {
		return toHTTPError(err)
	}
	return nil
}

// Value validates a single value against a validation tag (e.g. "required,min=1").
func Value(value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return toHTTPError(err)
	}
	return nil
}

func toHTTPError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed rule '%s'", fe.StructField(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (expected '%s')", fe.Param())
		}
		msgs = append(msgs, msg)
	}

	return httperror.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
}
