// Package code generates shareable session codes.
package code

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// DefaultLength is the reference code length.
const DefaultLength = 6

// MaxLength is the number of hex digits in a UUID.
const MaxLength = 32

var ErrInvalidLength = errors.New("code length must be between 1 and 32")

// Generator produces lowercase hex codes from random (v4) UUIDs, which are
// drawn from crypto/rand.
type Generator struct {
	length int
}

// NewGenerator returns a generator for codes of the given length.
func NewGenerator(length int) (*Generator, error) {
	if length < 1 || length > MaxLength {
		return nil, ErrInvalidLength
	}
	return &Generator{length: length}, nil
}

// Generate returns a fresh code.
func (g *Generator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", "")[:g.length], nil
}

// Length returns the configured code length.
func (g *Generator) Length() int {
	return g.length
}
