// Package validator wraps go-playground/validator with domain-specific rules.
package validator

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Stellar public keys are 56-character strkeys starting with G.
var stellarAddressRe = regexp.MustCompile(`^G[A-Z2-7]{55}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) registerCustomValidations() {
	_ = v.validate.RegisterValidation("stellar_address", func(fl validator.FieldLevel) bool {
		return stellarAddressRe.MatchString(fl.Field().String())
	})

	_ = v.validate.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		if amt, ok := fl.Field().Interface().(decimal.Decimal); ok {
			return amt.GreaterThan(decimal.Zero)
		}
		return false
	})
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		// Format validation errors
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "stellar_address":
					msg = "Invalid Stellar account address"
				case "positive_amount":
					msg = "Amount must be greater than zero"
				case "min":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "max":
					msg = fmt.Sprintf("Must be at most %s", e.Param())
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Sanitize strips HTML and trims whitespace from user-supplied text.
func Sanitize(s string) string {
	return strings.TrimSpace(html.EscapeString(s))
}
