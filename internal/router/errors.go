package router

import (
	"errors"

	"askboard/pkg/types"
)

// None of these reach the client over the real-time channel. They are
// logged and, for the REST demo endpoints, mapped to status codes.
var (
	ErrBlocked           = errors.New("question blocked by content filter")
	ErrEmptyQuestion     = types.ErrEmptyQuestion
	ErrQuestionTooLong   = types.ErrQuestionTooLong
	ErrQuestionNotFound  = errors.New("question not found")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrNilRegistry       = errors.New("session registry cannot be nil")
	ErrNilFilter         = errors.New("content filter cannot be nil")
	ErrInvalidAudience   = errors.New("audience must be one of: teacher, students, everyone, none")
)
