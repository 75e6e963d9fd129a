package project

import (
	"errors"

	"example.com/strutil"
)

var errInvalidEmail = errors.New("invalid email")

func validateEmail(email string) error {
	if !strutil.Contains(email, "@") {
		return errInvalidEmail
	}
	return nil
}
