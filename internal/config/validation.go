package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags.
//
// Parameters:
//   - cfg: Configuration to validate
//
// Returns:
//   - error: Validation error with details, or nil if valid
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				fieldError.Namespace(),
				fieldError.Tag(),
				fieldError.Value(),
			)
		}
	}
	return err
}
