package session

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultIDLength is the length of generated session ids
const DefaultIDLength = 24

// MinIDLength is the shortest id length a manager accepts
const MinIDLength = 12

// NewID generates an unguessable URL-safe session id
func NewID(length int) (string, error) {
	if length < MinIDLength {
		return "", fmt.Errorf("session id length must be at least %d, got %d", MinIDLength, length)
	}
	return gonanoid.New(length)
}
