package shared

import (
	"github.com/google/uuid"
)

// NewID returns a new unique identifier string.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether s is a well-formed identifier.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
