package dto

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "viral-clipper/pkg/errors"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks a request struct and returns a CodeInvalidParams error
// listing every failing field.
func Validate(s any) error {
	return validate(s)
}

func validate(s any) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(apperrors.CodeInvalidParams, "invalid request", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		msgs = append(msgs, e.Field()+" "+friendlyMessage(e))
	}
	sort.Strings(msgs)
	return apperrors.WrapWithDetail(apperrors.CodeInvalidParams, "invalid request", strings.Join(msgs, "; "), err)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "http_url":
		return "must be an http or https URL"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", e.Param())
	default:
		return "is invalid"
	}
}
