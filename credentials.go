package authclient

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials are the username and password for one login call. They are
// never stored.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegistrationRequest is the body of a user registration.
type RegistrationRequest struct {
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required,min=8"`
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	EmailAddress string `json:"emailAddress" validate:"required,email"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

type passwordResetRequest struct {
	Username string `json:"username" validate:"required"`
}

type passwordChangeRequest struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// validateRequest checks v against its struct tags and reports failures as
// an *AuthError of the given kind so callers see them in the same taxonomy
// as provider rejections.
func validateRequest(op Operation, kind ErrorKind, v any) error {
	if err := validate.Struct(v); err != nil {
		return newAuthError(kind, op, 0, "request validation failed", err)
	}
	return nil
}
