package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// SessionIDPrefix distinguishes session identifiers from other identifier kinds.
const SessionIDPrefix = "session_"

var sessionIDPattern = regexp.MustCompile(`^session_[0-9a-f]{8}$`)

// ErrPasswordTooLong is returned when bcrypt would silently truncate the input.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// NewSessionID returns "session_" followed by 8 random lowercase hex characters.
func NewSessionID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return SessionIDPrefix + hex.EncodeToString(b[:]), nil
}

// ValidSessionID reports whether id has the session identifier shape.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
