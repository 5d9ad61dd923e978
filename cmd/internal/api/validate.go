package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"guestgate/cmd/identity/ids"
	"guestgate/cmd/internal/ticket"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("ulid", func(fl validator.FieldLevel) bool {
			return ids.Valid(fl.Field().String())
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return ticket.PhoneOK(fl.Field().String())
		})
	})
	return validate
}

// validateRequest returns a single operator-readable message, or "" when s is valid.
func validateRequest(s any) string {
	err := getValidator().Struct(s)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "phone":
		return field + " must be digits only, at least 8"
	case "ulid":
		return field + " must be a valid id"
	case "email":
		return field + " must be a valid email address"
	case "hexcolor":
		return field + " must be a hex color"
	default:
		return field + " is invalid"
	}
}
