package session

import (
	"errors"

	"askboard/pkg/interfaces"
)

var (
	ErrSessionNotFound     = interfaces.ErrSessionNotFound
	ErrCodeSpaceExhausted  = errors.New("could not generate an unused session code")
	ErrDuplicateQuestionID = errors.New("question id already present in ledger")
	ErrNilCodeSource       = errors.New("code source cannot be nil")
)
