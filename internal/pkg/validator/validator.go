package validator

import (
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate struct fields, returning field -> violated rule.
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		rule := err.Tag()
		if err.Param() != "" {
			rule += "=" + err.Param()
		}
		errors[err.Field()] = rule
	}
	return errors
}
