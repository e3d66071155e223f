package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxQueryBytes bounds a chat query.
const MaxQueryBytes = 16 << 10

// ValidateQuery validates a chat query.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query cannot be empty")
	}
	if len(query) > MaxQueryBytes {
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(query) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a backend session id taken from a URL.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("session ID exceeds maximum length")
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-' || r == '_') {
			return errors.New("invalid session ID format")
		}
	}
	return nil
}
