package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"askboard/internal/hub"
	"askboard/internal/router"
	"askboard/internal/session"
	"askboard/pkg/interfaces"
	"askboard/pkg/types"
)

// Sessions is the part of the session registry the API needs.
type Sessions interface {
	Create(ctx context.Context) (*session.Session, error)
	Lookup(code string) (*session.Session, error)
	Count() int
}

// Submitter runs a submission on the event timeline. The hub implements it.
type Submitter interface {
	Submit(ctx context.Context, code, text string) (types.Question, error)
}

// ConnectionCounter reports live real-time connections.
type ConnectionCounter interface {
	Count() int
}

// AuditReader is implemented by audit logs that can be queried. When the
// configured audit log implements it, /health reports per-kind totals and
// /api/audit/{code} lists a session's events.
type AuditReader interface {
	ListEvents(ctx context.Context, sessionCode string) ([]*types.AuditEvent, error)
	CountByKind(ctx context.Context) (map[string]int, error)
}

// Config wires the server. WebSocket, Connections and Audit are optional.
type Config struct {
	Sessions    Sessions
	Submitter   Submitter
	Connections ConnectionCounter
	Audit       interfaces.AuditLog

	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler

	// StaticDir is served at / when it exists.
	StaticDir string

	BlacklistSize int
}

// Server is the HTTP surface: code generation, the REST question API,
// the health check and static files.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	started time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("sessions cannot be nil")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if cfg.Audit == nil {
		cfg.Audit = interfaces.NopAuditLog{}
	}

	s := &Server{cfg: cfg, mux: http.NewServeMux(), started: time.Now()}
	s.setupRoutes()
	s.handler = s.corsMiddleware(s.mux)
	return s, nil
}

func (s *Server) setupRoutes() {
	api := func(h http.HandlerFunc) http.Handler {
		return s.jsonMiddleware(h)
	}

	s.mux.Handle("POST /generate-code", api(s.generateCode))
	s.mux.Handle("POST /api/generate", api(s.generateCode))
	s.mux.Handle("GET /api/questions/{code}", api(s.listQuestions))
	s.mux.Handle("POST /api/submit", api(s.submitQuestion))
	s.mux.Handle("GET /health", api(s.healthCheck))
	if _, ok := s.cfg.Audit.(AuditReader); ok {
		s.mux.Handle("GET /api/audit/{code}", api(s.listAuditEvents))
	}

	if s.cfg.WebSocket != nil {
		s.mux.Handle("GET /ws", s.cfg.WebSocket)
	}

	if dir := s.cfg.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.mux.Handle("GET /", http.FileServer(http.Dir(dir)))
		} else {
			log.Printf("Static directory not found, not serving files: dir=%s", dir)
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type GenerateCodeResponse struct {
	Code string `json:"code"`
}

type SubmitRequest struct {
	Code     string `json:"code"`
	Question string `json:"question"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Uptime        string    `json:"uptime"`
	Audit         string    `json:"audit"`
	Sessions      int       `json:"sessions"`
	Connections   int       `json:"connections"`
	BlacklistSize int       `json:"blacklist_size"`

	AuditEvents map[string]int `json:"audit_events,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /generate-code
func (s *Server) generateCode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Sessions.Create(r.Context())
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, GenerateCodeResponse{Code: sess.Code()})
}

// GET /api/questions/{code}
func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Sessions.Lookup(r.PathValue("code"))
	if err != nil {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}

	questions := sess.Questions()
	if questions == nil {
		questions = []types.Question{}
	}
	s.sendJSON(w, http.StatusOK, questions)
}

// POST /api/submit
func (s *Server) submitQuestion(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	q, err := s.cfg.Submitter.Submit(r.Context(), req.Code, req.Question)
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, SubmitResponse{Success: true, ID: q.ID})
	case errors.Is(err, session.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, router.ErrBlocked):
		s.sendError(w, "Question contains blocked content", http.StatusUnprocessableEntity)
	case router.IsPolicyRejection(err):
		s.sendError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, hub.ErrHubNotRunning):
		s.sendError(w, "Server is shutting down", http.StatusServiceUnavailable)
	default:
		log.Printf("Submit via API failed: code=%s: %v", req.Code, err)
		s.sendError(w, "Failed to submit question", http.StatusInternalServerError)
	}
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Audit:         "healthy",
		Sessions:      s.cfg.Sessions.Count(),
		BlacklistSize: s.cfg.BlacklistSize,
	}
	if s.cfg.Connections != nil {
		resp.Connections = s.cfg.Connections.Count()
	}

	code := http.StatusOK
	if err := s.cfg.Audit.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Audit = fmt.Sprintf("error: %v", err)
		code = http.StatusServiceUnavailable
	} else if reader, ok := s.cfg.Audit.(AuditReader); ok {
		counts, err := reader.CountByKind(ctx)
		if err != nil {
			log.Printf("Failed to count audit events: %v", err)
		} else {
			resp.AuditEvents = counts
		}
	}
	s.sendJSON(w, code, resp)
}

// GET /api/audit/{code}
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	reader := s.cfg.Audit.(AuditReader)
	events, err := reader.ListEvents(r.Context(), r.PathValue("code"))
	if err != nil {
		log.Printf("Failed to list audit events: code=%s: %v", r.PathValue("code"), err)
		s.sendError(w, "Failed to read audit log", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.AuditEvent{}
	}
	s.sendJSON(w, http.StatusOK, events)
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows every origin and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
