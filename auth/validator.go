package auth

import (
	"unicode"

	"chat-sync/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=12,max=72"`
	DisplayName string `json:"displayName" validate:"omitempty,min=2,max=64"`
}

// ValidateRegister checks the tags, then requires a password mixing every character class.
func ValidateRegister(req RegisterRequest) error {
	if err := Validate(req); err != nil {
		return err
	}
	if passwordClasses(req.Password) != allClasses {
		return errors.ErrInvalidPassword
	}
	return nil
}

// Validate checks the struct tags of any request or event payload.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return errors.Validation("%v", err)
	}
	return nil
}

type charClass uint8

const (
	upper charClass = 1 << iota
	lower
	digit
	special

	allClasses = upper | lower | digit | special
)

func passwordClasses(password string) charClass {
	var seen charClass
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen |= upper
		case unicode.IsLower(r):
			seen |= lower
		case unicode.IsNumber(r):
			seen |= digit
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			seen |= special
		}
	}
	return seen
}
