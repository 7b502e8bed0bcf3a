package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"askboard/internal/common/clock"
	"askboard/internal/session"
	"askboard/pkg/interfaces"
	"askboard/pkg/types"
)

// Config holds the router dependencies.
type Config struct {
	Registry *session.Registry
	Filter   interfaces.ContentFilter

	// Audit is optional.
	Audit interfaces.AuditLog

	// Clock stamps accepted questions. Defaults to the system clock.
	Clock clock.Clock

	Policy Policy

	// SubmitsPerWindow caps submit-question per connection.
	// Zero disables the limit.
	SubmitsPerWindow int
	RateWindow       time.Duration
}

// Router is the dispatch point for real-time events and the sender of
// question notifications. Callers serialize mutating calls through the
// hub; the router itself only relies on session locking.
type Router struct {
	registry *session.Registry
	filter   interfaces.ContentFilter
	audit    interfaces.AuditLog
	clock    clock.Clock
	policy   Policy
	limiter  *RateLimiter
}

// NewRouter creates a router.
func NewRouter(cfg *Config) (*Router, error) {
	if cfg == nil || cfg.Registry == nil {
		return nil, ErrNilRegistry
	}
	if cfg.Filter == nil {
		return nil, ErrNilFilter
	}

	policy := cfg.Policy
	if policy.NewQuestion == "" && policy.QuestionRemoved == "" {
		defaults := DefaultPolicy()
		policy.NewQuestion = defaults.NewQuestion
		policy.QuestionRemoved = defaults.QuestionRemoved
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		registry: cfg.Registry,
		filter:   cfg.Filter,
		audit:    cfg.Audit,
		clock:    cfg.Clock,
		policy:   policy,
		limiter:  NewRateLimiter(cfg.SubmitsPerWindow, cfg.RateWindow),
	}
	if r.audit == nil {
		r.audit = interfaces.NopAuditLog{}
	}
	if r.clock == nil {
		r.clock = &clock.DefaultClock{}
	}
	return r, nil
}

// Policy returns the active notification policy.
func (r *Router) Policy() Policy {
	return r.policy
}

// Dispatch decodes one client envelope and runs the matching operation.
// The returned error is for logging only; nothing is sent back on failure.
func (r *Router) Dispatch(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	switch env.Event {
	case types.EventCheckSession:
		var req types.CodeRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		exists := r.CheckSession(req.Code)
		if err := conn.Send(types.EventAck, types.AckPayload{Ack: env.Ack, Result: exists}); err != nil {
			log.Printf("Failed to send check-session ack to %s: %v", conn.ID(), err)
		}
		return nil

	case types.EventJoinSession:
		var req types.CodeRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := r.Join(ctx, conn, req.Code)
		return err

	case types.EventSubmitQuestion:
		var req types.SubmitRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := r.Submit(ctx, conn, req.Code, req.Text)
		return err

	case types.EventDeleteQuestion:
		var req types.DeleteRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := r.Delete(ctx, conn, req.Code, req.QuestionID)
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// CheckSession reports whether code names an existing session.
func (r *Router) CheckSession(code string) bool {
	return r.registry.Exists(code)
}

// Join assigns conn a role in the session named by code.
func (r *Router) Join(ctx context.Context, conn interfaces.Connection, code string) (types.Role, error) {
	s, err := r.registry.Lookup(code)
	if err != nil {
		log.Printf("Join rejected, session not found: code=%s conn=%s", code, conn.ID())
		return types.RoleUnassigned, err
	}

	role := s.Join(conn)
	switch role {
	case types.RoleTeacher:
		log.Printf("Teacher joined session: code=%s conn=%s", code, conn.ID())
		if r.policy.ReplayBacklog {
			for _, q := range s.Questions() {
				r.deliver(conn, types.EventNewQuestion, q.Payload())
			}
		}
	case types.RoleStudent:
		log.Printf("Student joined session: code=%s conn=%s", code, conn.ID())
	}
	return role, nil
}

// Submit runs a question through the filter and, when clean, appends it to
// the ledger and notifies the policy audience. conn is nil for submissions
// that did not come over the real-time channel.
func (r *Router) Submit(ctx context.Context, conn interfaces.Connection, code, text string) (types.Question, error) {
	connID := ""
	if conn != nil {
		connID = conn.ID()
	}

	s, err := r.registry.Lookup(code)
	if err != nil {
		log.Printf("Submit rejected, session not found: code=%s conn=%s", code, connID)
		return types.Question{}, err
	}

	if connID != "" && !r.limiter.Allow(connID) {
		log.Printf("Submit rejected, rate limit exceeded: code=%s conn=%s", code, connID)
		return types.Question{}, ErrRateLimitExceeded
	}

	text, err = types.NormalizeQuestion(text)
	if err != nil {
		log.Printf("Submit rejected: code=%s conn=%s: %v", code, connID, err)
		return types.Question{}, err
	}

	if r.filter.IsBlocked(text) {
		log.Printf("Blocked inappropriate question: code=%s conn=%s text=%q", code, connID, truncate(text, 80))
		r.audit.Record(ctx, &types.AuditEvent{
			SessionCode:  code,
			Kind:         types.AuditQuestionBlocked,
			Text:         text,
			ConnectionID: connID,
			CreatedAt:    r.clock.Now(),
		})
		return types.Question{}, ErrBlocked
	}

	q, err := s.Submit(text, r.clock.Now())
	if err != nil {
		log.Printf("Ledger defect: code=%s: %v", code, err)
		return types.Question{}, err
	}

	r.audit.Record(ctx, &types.AuditEvent{
		SessionCode:  code,
		Kind:         types.AuditQuestionAccepted,
		QuestionID:   q.ID,
		Text:         q.Text,
		ConnectionID: connID,
		CreatedAt:    q.SubmittedAt,
	})
	log.Printf("Question submitted: code=%s id=%s", code, q.ID)

	r.NotifyNewQuestion(s, q)
	if r.policy.AckSubmitter && conn != nil {
		r.deliver(conn, types.EventQuestionAccepted, q.Payload())
	}
	return q, nil
}

// Delete removes a question from the ledger and notifies the policy
// audience. Unknown ids are a silent no-op apart from the returned error.
func (r *Router) Delete(ctx context.Context, conn interfaces.Connection, code, questionID string) (types.Question, error) {
	connID := ""
	if conn != nil {
		connID = conn.ID()
	}

	s, err := r.registry.Lookup(code)
	if err != nil {
		log.Printf("Delete rejected, session not found: code=%s conn=%s", code, connID)
		return types.Question{}, err
	}

	q, ok := s.Delete(questionID)
	if !ok {
		return types.Question{}, ErrQuestionNotFound
	}

	r.audit.Record(ctx, &types.AuditEvent{
		SessionCode:  code,
		Kind:         types.AuditQuestionDeleted,
		QuestionID:   q.ID,
		Text:         q.Text,
		ConnectionID: connID,
		CreatedAt:    r.clock.Now(),
	})
	log.Printf("Question removed: code=%s id=%s", code, q.ID)

	r.NotifyQuestionRemoved(s, q.ID)
	return q, nil
}

// Disconnect purges conn from every session. Questions and sessions are
// left untouched, and a vacated teacher slot stays empty.
func (r *Router) Disconnect(conn interfaces.Connection) {
	id := conn.ID()
	r.registry.Sweep(func(s *session.Session) {
		switch s.Leave(id) {
		case types.RoleTeacher:
			log.Printf("Teacher left session: code=%s conn=%s", s.Code(), id)
		case types.RoleStudent:
			log.Printf("Student left session: code=%s conn=%s", s.Code(), id)
		}
	})
	r.limiter.Forget(id)
	log.Printf("User disconnected: conn=%s", id)
}

// CleanupRateLimits drops limiter state for idle connections.
func (r *Router) CleanupRateLimits() {
	r.limiter.Cleanup()
}

// NotifyNewQuestion pushes new-question to the policy audience. With the
// default policy and an empty teacher slot the notification is dropped.
func (r *Router) NotifyNewQuestion(s *session.Session, q types.Question) {
	for _, conn := range recipients(s, r.policy.NewQuestion) {
		r.deliver(conn, types.EventNewQuestion, q.Payload())
	}
}

// NotifyQuestionRemoved pushes remove-question to the policy audience.
func (r *Router) NotifyQuestionRemoved(s *session.Session, questionID string) {
	for _, conn := range recipients(s, r.policy.QuestionRemoved) {
		r.deliver(conn, types.EventRemoveQuestion, questionID)
	}
}

// deliver logs a failed send and moves on.
func (r *Router) deliver(conn interfaces.Connection, event string, payload interface{}) {
	if err := conn.Send(event, payload); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", event, conn.ID(), err)
	}
}

// IsPolicyRejection reports whether err is a content or input outcome
// rather than a system failure.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, ErrQuestionTooLong) ||
		errors.Is(err, ErrRateLimitExceeded)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
