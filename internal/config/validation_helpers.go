package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// convertValidationError normalizes validator errors into diva validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return divaerrors.NewValidationError(field, msg, err)
	}

	return divaerrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForPipeline(index int, field string) string {
	return fmt.Sprintf("pipelines[%d].%s", index, field)
}

func fieldForPage(index int, field string) string {
	return fmt.Sprintf("pages[%d].%s", index, field)
}
