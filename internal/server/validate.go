package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/nainya/boardstore/pkg/board"
)

// requestValidator validates API bodies and strips markup from names
type requestValidator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func newRequestValidator() *requestValidator {
	return &requestValidator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Check validates req against its struct tags
func (v *requestValidator) Check(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %s", board.ErrInvalidInput, formatValidationError(fieldErrs[0]))
		}
		return fmt.Errorf("%w: %v", board.ErrInvalidInput, err)
	}
	return nil
}

// Name returns name with all HTML removed
func (v *requestValidator) Name(name string) (string, error) {
	clean := strings.TrimSpace(v.sanitizer.Sanitize(name))
	if clean == "" {
		return "", fmt.Errorf("%w: 'name' is empty after sanitizing", board.ErrInvalidInput)
	}
	return clean, nil
}

func formatValidationError(err validator.FieldError) string {
	field := strings.ToLower(err.Field())

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max":
		return fmt.Sprintf("'%s' length out of allowed range", field)
	case "startswith":
		return fmt.Sprintf("'%s' must be a data URL", field)
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
