// Package database writes the moderation audit trail to SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	dbconfig "askboard/pkg/database"
	"askboard/pkg/types"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrQueueFull     = errors.New("audit write queue is full")
)

const (
	DefaultQueueSize  = 256
	DefaultRetryDelay = time.Second
)

// Options tune the writer. Zero values take defaults.
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	RetryDelay   time.Duration
}

// Manager implements interfaces.AuditLog. Reads go straight to the pool;
// every write is applied by one goroutine.
type Manager struct {
	db   *sql.DB
	opts Options

	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup

	closed bool
	mu     sync.RWMutex

	dropped int64
}

type writeOperation struct {
	operation func(ctx context.Context, db *sql.DB) error
	// result is nil for fire-and-forget writes.
	result chan error
}

// NewManager opens the database, applies migrations and starts the writer.
func NewManager(cfg *dbconfig.Config, opts Options) (*Manager, error) {
	db, err := dbconfig.Open(cfg)
	if err != nil {
		return nil, err
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.WriteTimeout)
	defer cancel()
	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit database schema invalid: %w", err)
	}

	m := &Manager{
		db:           db,
		opts:         opts,
		writeChannel: make(chan writeOperation, opts.QueueSize),
		shutdown:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()

	log.Printf("Audit database ready: path=%s", cfg.DatabasePath)
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.execute(op)
		case <-m.shutdown:
			// drain what was queued before Close
			for {
				select {
				case op := <-m.writeChannel:
					m.execute(op)
				default:
					log.Println("Database write loop shutting down")
					return
				}
			}
		}
	}
}

// execute runs op, retrying once after RetryDelay.
func (m *Manager) execute(op writeOperation) {
	err := m.run(op)
	if err != nil {
		log.Printf("Database write failed, retrying in %v: %v", m.opts.RetryDelay, err)
		time.Sleep(m.opts.RetryDelay)
		if err = m.run(op); err != nil {
			log.Printf("Database write failed after retry: %v", err)
		}
	}
	if op.result != nil {
		op.result <- err
	}
}

func (m *Manager) run(op writeOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteTimeout)
	defer cancel()
	return op.operation(ctx, m.db)
}

func (m *Manager) enqueue(op writeOperation) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrManagerClosed
	}

	select {
	case m.writeChannel <- op:
		return nil
	default:
		return ErrQueueFull
	}
}

// Record queues event for writing and returns immediately. Invalid events
// and events that do not fit in the queue are logged and dropped.
func (m *Manager) Record(_ context.Context, event *types.AuditEvent) {
	if err := event.Validate(); err != nil {
		log.Printf("Dropping invalid audit event: kind=%s: %v", event.Kind, err)
		return
	}

	ev := *event
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()

	err := m.enqueue(writeOperation{operation: func(ctx context.Context, db *sql.DB) error {
		return insertEvent(ctx, db, &ev)
	}})
	if err != nil {
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		log.Printf("Dropping audit event: kind=%s code=%s: %v", ev.Kind, ev.SessionCode, err)
	}
}

func insertEvent(ctx context.Context, db *sql.DB, ev *types.AuditEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_events (session_code, kind, question_id, text, connection_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.SessionCode, ev.Kind, ev.QuestionID, ev.Text, ev.ConnectionID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Flush waits until every event queued before the call is written.
func (m *Manager) Flush(ctx context.Context) error {
	result := make(chan error, 1)
	barrier := writeOperation{
		operation: func(context.Context, *sql.DB) error { return nil },
		result:    result,
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	select {
	case m.writeChannel <- barrier:
		m.mu.RUnlock()
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListEvents returns the audit rows of one session, oldest first.
func (m *Manager) ListEvents(ctx context.Context, sessionCode string) ([]*types.AuditEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_code, kind, question_id, text, connection_id, created_at
		FROM audit_events
		WHERE session_code = ?
		ORDER BY id ASC
	`, sessionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.AuditEvent
	for rows.Next() {
		var ev types.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.SessionCode, &ev.Kind, &ev.QuestionID, &ev.Text, &ev.ConnectionID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return events, nil
}

// CountByKind tallies every stored event by kind.
func (m *Manager) CountByKind(ctx context.Context) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM audit_events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Dropped reports how many events were discarded.
func (m *Manager) Dropped() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// HealthCheck validates connectivity and that the audit table is readable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close writes what is still queued, then closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
