package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"askboard/internal/common/clock"
	"askboard/pkg/interfaces"
	"askboard/pkg/types"
)

// DefaultMaxCodeAttempts bounds collision retries in Create.
const DefaultMaxCodeAttempts = 16

// CodeSource produces candidate session codes.
type CodeSource interface {
	Generate() (string, error)
}

// Config holds the registry dependencies.
type Config struct {
	Codes CodeSource

	// Audit receives a session_created event per Create. Optional.
	Audit interfaces.AuditLog

	// Clock stamps session creation. Defaults to the system clock.
	Clock clock.Clock

	// MaxCodeAttempts defaults to DefaultMaxCodeAttempts.
	MaxCodeAttempts int
}

// Registry owns the code -> Session map. Sessions are never removed; they
// live until the process exits.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	codes       CodeSource
	audit       interfaces.AuditLog
	clock       clock.Clock
	maxAttempts int
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil || cfg.Codes == nil {
		return nil, ErrNilCodeSource
	}

	r := &Registry{
		sessions:    make(map[string]*Session),
		codes:       cfg.Codes,
		audit:       cfg.Audit,
		clock:       cfg.Clock,
		maxAttempts: cfg.MaxCodeAttempts,
	}
	if r.audit == nil {
		r.audit = interfaces.NopAuditLog{}
	}
	if r.clock == nil {
		r.clock = &clock.DefaultClock{}
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultMaxCodeAttempts
	}
	return r, nil
}

// Create installs a new empty session under a fresh code. Colliding codes
// are retried up to the configured attempt limit.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		code, err := r.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session code: %w", err)
		}

		s, ok := r.install(code)
		if !ok {
			log.Printf("Session code collision: code=%s attempt=%d", code, attempt)
			continue
		}

		r.audit.Record(ctx, &types.AuditEvent{
			SessionCode: code,
			Kind:        types.AuditSessionCreated,
			CreatedAt:   s.CreatedAt(),
		})
		log.Printf("Created session: code=%s", code)
		return s, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, r.maxAttempts)
}

func (r *Registry) install(code string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[code]; exists {
		return nil, false
	}
	s := newSession(code, r.clock.Now())
	r.sessions[code] = s
	return s, true
}

// Lookup returns the session for code or ErrSessionNotFound.
func (r *Registry) Lookup(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Exists reports whether code names a session.
func (r *Registry) Exists(code string) bool {
	_, err := r.Lookup(code)
	return err == nil
}

// Sweep calls fn for every session, including sessions installed before
// the call started. fn runs outside the registry lock.
func (r *Registry) Sweep(fn func(*Session)) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// Count returns the number of sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
