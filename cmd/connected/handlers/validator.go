package handlers

import (
	"github.com/go-playground/validator/v10"
)

// RequestValidator runs validate struct tags for echo.Context.Validate
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a validator for request bodies
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
