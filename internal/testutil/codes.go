package testutil

import (
	"errors"
	"sync"
)

// ErrCodesExhausted is returned once a SequenceCodes runs dry.
var ErrCodesExhausted = errors.New("no more scripted codes")

// SequenceCodes hands out a scripted list of codes, for collision tests.
type SequenceCodes struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func NewSequenceCodes(codes ...string) *SequenceCodes {
	return &SequenceCodes{codes: codes}
}

func (s *SequenceCodes) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.codes) == 0 {
		return "", ErrCodesExhausted
	}
	c := s.codes[0]
	s.codes = s.codes[1:]
	return c, nil
}

// Calls returns how many codes were requested.
func (s *SequenceCodes) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
