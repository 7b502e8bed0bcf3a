package types

import "errors"

var (
	ErrEmptyQuestion      = errors.New("question text cannot be empty")
	ErrQuestionTooLong    = errors.New("question text exceeds 2000 characters")
	ErrInvalidAuditKind   = errors.New("invalid audit event kind")
	ErrMissingSessionCode = errors.New("audit event requires a session code")
)
