package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Credential errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLoginDisabled      = errors.New("API login is disabled: no admin password configured")
)

// Operator is the single account allowed to use the API.
type Operator struct {
	Username     string
	PasswordHash string
}

// Authenticate checks username and password against the operator. Both are
// always compared so a wrong username costs the same as a wrong password.
func (o Operator) Authenticate(username, password string) error {
	if o.PasswordHash == "" {
		return ErrLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(o.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in api.admin.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
