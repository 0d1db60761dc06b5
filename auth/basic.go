package auth

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// PasswordChecker reports whether password is correct for user.
type PasswordChecker interface {
	CheckPassword(user, password string) bool
}

// PasswordCheckerFunc adapts a function to a PasswordChecker.
type PasswordCheckerFunc func(user, password string) bool

func (f PasswordCheckerFunc) CheckPassword(user, password string) bool {
	return f(user, password)
}

// Basic authenticates HTTP Basic credentials against Checker.
type Basic struct {
	Checker PasswordChecker
}

func (b *Basic) Authenticate(r *http.Request) (Principal, error) {
	user, password, ok := r.BasicAuth()
	if !ok {
		return Principal{}, ErrNoCredentials
	}
	if b.Checker == nil || !b.Checker.CheckPassword(user, password) {
		return Principal{}, ErrBadCredentials
	}
	return Principal{Subject: user, Scheme: "Basic"}, nil
}

func (b *Basic) Challenge(realm string) string {
	return challenge("Basic", realm) + `, charset="UTF-8"`
}

// BcryptUsers maps user names to bcrypt password hashes.
type BcryptUsers map[string]string

// CheckPassword implements PasswordChecker.
func (u BcryptUsers) CheckPassword(user, password string) bool {
	hash, ok := u[user]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword returns the bcrypt hash of password for use in BcryptUsers.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
