package domain

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	emailPattern  = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	userIDPattern = regexp.MustCompile(`^[0-9A-Za-z_=-]{1,64}$`)
)

// ValidateEmail accepts addresses shorter than 255 characters that have a
// single "@" followed by a dotted domain.
func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required,
		validation.RuneLength(1, 254),
		validation.Match(emailPattern),
	)
	if err != nil {
		return fmt.Errorf("%w: email: %v", ErrInvalidInput, err)
	}
	return nil
}

// ValidateUserID checks identifiers returned by the identity API.
func ValidateUserID(userID string) error {
	if err := validation.Validate(userID, validation.Required, validation.Match(userIDPattern)); err != nil {
		return fmt.Errorf("%w: user id %q: %v", ErrInvalidInput, userID, err)
	}
	return nil
}

// ValidatePassword enforces the configured length bounds, counted in
// characters.
func ValidatePassword(password string, minLength, maxLength int) error {
	err := validation.Validate(password,
		validation.Required,
		validation.RuneLength(minLength, maxLength),
	)
	if err != nil {
		return fmt.Errorf("%w: password: %v", ErrInvalidInput, err)
	}
	return nil
}
