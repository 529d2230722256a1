// Package validator wraps go-playground/validator for request
// validation in the handlers.
package validator

import "github.com/go-playground/validator/v10"

// Validator validates structs against their validation tags.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator. Custom rules are added through
// RegisterValidation.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates a struct by its tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates one value against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation adds a custom validation rule.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
