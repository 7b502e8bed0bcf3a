package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds question text in runes.
const MaxQuestionLength = 2000

var codeRegex = regexp.MustCompile(`^[a-z0-9]+$`)

// IsValidCode reports whether code has the shape of a generated session code.
func IsValidCode(code string) bool {
	if len(code) < 1 || len(code) > 32 {
		return false
	}
	return codeRegex.MatchString(code)
}

// NormalizeQuestion trims surrounding whitespace and checks length.
func NormalizeQuestion(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyQuestion
	}
	if utf8.RuneCountInString(text) > MaxQuestionLength {
		return "", ErrQuestionTooLong
	}
	return text, nil
}

// Validate checks an audit event before it is written.
func (e *AuditEvent) Validate() error {
	if e.SessionCode == "" {
		return ErrMissingSessionCode
	}
	switch e.Kind {
	case AuditSessionCreated, AuditQuestionAccepted, AuditQuestionBlocked, AuditQuestionDeleted:
		return nil
	default:
		return ErrInvalidAuditKind
	}
}
