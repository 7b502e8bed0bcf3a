package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"

	"askboard/internal/api"
	"askboard/internal/code"
	"askboard/internal/config"
	"askboard/internal/database"
	"askboard/internal/filter"
	"askboard/internal/hub"
	"askboard/internal/router"
	"askboard/internal/session"
	"askboard/internal/websocket"
	pkgdatabase "askboard/pkg/database"
	"askboard/pkg/interfaces"
)

// Application coordinates all system components.
type Application struct {
	config *config.Config

	audit    interfaces.AuditLog
	filter   *filter.Filter
	registry *session.Registry
	router   *router.Router
	hub      *hub.Hub

	connections *websocket.Registry
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
}

// NewApplication builds every component in dependency order:
// Audit → Filter → Sessions → Router → Hub → WebSocket → API → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	audit, err := openAudit(cfg.Audit)
	if err != nil {
		return nil, err
	}

	f, err := loadFilter(cfg.Filter.BlacklistPath)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	gen, err := code.NewGenerator(cfg.Session.CodeLength)
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create code generator: %w", err)
	}

	registry, err := session.NewRegistry(&session.Config{
		Codes:           gen,
		Audit:           audit,
		MaxCodeAttempts: cfg.Session.MaxCodeAttempts,
	})
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}

	r, err := router.NewRouter(&router.Config{
		Registry: registry,
		Filter:   f,
		Audit:    audit,
		Policy: router.Policy{
			NewQuestion:     router.Audience(cfg.Broadcast.NewQuestionAudience),
			QuestionRemoved: router.Audience(cfg.Broadcast.RemovalAudience),
			AckSubmitter:    cfg.Broadcast.AckSubmitter,
			ReplayBacklog:   cfg.Broadcast.ReplayBacklog,
		},
		SubmitsPerWindow: cfg.RateLimit.MessagesPerWindow,
		RateWindow:       cfg.RateLimit.Window.Std(),
	})
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	h, err := hub.NewHub(r, cfg.WebSocket.HubQueueSize)
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create hub: %w", err)
	}

	connections := websocket.NewRegistry()
	wsHandler, err := websocket.NewHandler(h, connections, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval.Std(),
		ReadTimeout:    cfg.WebSocket.ReadTimeout.Std(),
		WriteTimeout:   cfg.WebSocket.WriteTimeout.Std(),
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create websocket handler: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		Sessions:      registry,
		Submitter:     h,
		Connections:   connections,
		Audit:         audit,
		WebSocket:     wsHandler,
		StaticDir:     cfg.HTTP.StaticDir,
		BlacklistSize: f.Len(),
	})
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
	}

	return &Application{
		config:      cfg,
		audit:       audit,
		filter:      f,
		registry:    registry,
		router:      r,
		hub:         h,
		connections: connections,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

func openAudit(cfg *config.AuditConfig) (interfaces.AuditLog, error) {
	if !cfg.Enabled {
		log.Println("Audit log disabled")
		return interfaces.NopAuditLog{}, nil
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path

	m, err := database.NewManager(dbConfig, database.Options{WriteTimeout: cfg.Timeout.Std()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	return m, nil
}

// loadFilter reads the blacklist. A missing file leaves the filter empty.
func loadFilter(path string) (*filter.Filter, error) {
	if path == "" {
		return filter.New(nil), nil
	}
	f, err := filter.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Blacklist not found, filtering disabled: path=%s", path)
		return filter.New(nil), nil
	}
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded blacklist: path=%s words=%d", path, f.Len())
	return f, nil
}

// Start listens on the configured address and serves in the background.
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve starts the hub, then serves HTTP on ln in the background.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	if err := app.hub.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	app.listener = ln
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("askboard listening on %s", ln.Addr())
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP → sockets → Hub → Audit.
func (app *Application) Stop(ctx context.Context) error {
	log.Println("Shutting down askboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.connections.CloseAll()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Hub shutdown error: %v", err)
	}

	if err := app.audit.Close(); err != nil {
		log.Printf("Audit shutdown error: %v", err)
	}

	log.Println("askboard shutdown complete")
	return nil
}

// Addr returns the bound address once serving, else the configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// ShutdownTimeout is how long Stop may take.
func (app *Application) ShutdownTimeout() time.Duration {
	return app.config.HTTP.ShutdownTimeout.Std()
}
