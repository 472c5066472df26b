package services

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// hashPrefixes lists the scheme markers of stored credentials. A value with
// none of them is treated as plaintext.
var hashPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IsHashed reports whether value already looks like a stored hash.
func IsHashed(value string) bool {
	for _, prefix := range hashPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a stored hash with a candidate password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
