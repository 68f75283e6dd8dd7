package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks v's `validate` struct tags
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidationDetails renders a validation error as a readable "; "-joined list
func ValidationDetails(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	var details strings.Builder
	for _, err := range errs {
		if details.Len() > 0 {
			details.WriteString("; ")
		}
		switch err.Tag() {
		case "required":
			details.WriteString(fmt.Sprintf("%s is required", err.Field()))
		case "len":
			details.WriteString(fmt.Sprintf("%s must be exactly %s characters", err.Field(), err.Param()))
		case "uuid":
			details.WriteString(fmt.Sprintf("%s must be a valid UUID", err.Field()))
		case "max":
			if err.Type().Kind() == reflect.String {
				details.WriteString(fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param()))
			} else {
				details.WriteString(fmt.Sprintf("%s must be at most %s", err.Field(), err.Param()))
			}
		default:
			details.WriteString(fmt.Sprintf("%s failed %s validation", err.Field(), err.Tag()))
		}
	}
	return details.String()
}
