package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"askboard/pkg/interfaces"
	"askboard/pkg/types"

	"github.com/gorilla/websocket"
)

// Dispatcher receives decoded client events and disconnects. The hub
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error
	Disconnect(ctx context.Context, conn interfaces.Connection) error
}

// HandlerConfig tunes the socket lifecycle.
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultHandlerConfig matches the config package defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   DefaultWriteTimeout,
		BufferSize:     DefaultBufferSize,
		MaxMessageSize: 16384,
	}
}

// Handler upgrades HTTP requests and pumps client frames to a Dispatcher.
type Handler struct {
	dispatcher Dispatcher
	registry   *Registry
	upgrader   websocket.Upgrader
	cfg        HandlerConfig
}

// NewHandler creates a handler. Zero config fields take their defaults.
func NewHandler(d Dispatcher, registry *Registry, cfg HandlerConfig) (*Handler, error) {
	if d == nil {
		return nil, ErrNilDispatcher
	}
	if registry == nil {
		registry = NewRegistry()
	}

	defaults := DefaultHandlerConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Handler{
		dispatcher: d,
		registry:   registry,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			// Any origin may connect.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Registry returns the live connection registry.
func (h *Handler) Registry() *Registry {
	return h.registry
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, h.cfg.BufferSize, h.cfg.WriteTimeout)
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}
	log.Printf("User connected: conn=%s remote=%s", conn.ID(), r.RemoteAddr)

	go h.handleConnection(conn)
}

func (h *Handler) handleConnection(conn *Connection) {
	// The disconnect is queued before the connection leaves the registry,
	// so anything that observes the registry shrink is ordered after it.
	defer func() {
		_ = conn.Close()
		if err := h.dispatcher.Disconnect(context.Background(), conn); err != nil {
			log.Printf("Failed to queue disconnect for %s: %v", conn.ID(), err)
		}
		h.registry.Unregister(conn)
	}()

	ws := conn.conn
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: conn=%s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Printf("Dropping malformed frame from %s", conn.ID())
			continue
		}

		if err := h.dispatcher.Dispatch(conn.Context(), conn, &env); err != nil {
			log.Printf("Failed to dispatch %s from %s: %v", env.Event, conn.ID(), err)
			return
		}
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}
