// Package hub serializes every session mutation on one goroutine.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"askboard/internal/router"
	"askboard/pkg/interfaces"
	"askboard/pkg/types"
)

// DefaultQueueSize buffers inbound jobs during bursts.
const DefaultQueueSize = 1000

// CleanupInterval is how often idle rate-limit state is dropped.
const CleanupInterval = time.Minute

type jobKind int

const (
	jobEvent jobKind = iota
	jobDisconnect
	jobSubmit
)

// job is one unit of work. Events, disconnects and REST submissions share
// a queue so a connection's disconnect is never applied before the events
// it sent earlier.
type job struct {
	kind jobKind
	conn interfaces.Connection
	env  *types.Envelope

	code   string
	text   string
	result chan submitResult
}

type submitResult struct {
	question types.Question
	err      error
}

// Hub owns the single event-processing timeline.
type Hub struct {
	queue    chan job
	shutdown chan struct{}
	done     chan struct{}

	router *router.Router

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub in front of r.
func NewHub(r *router.Router, queueSize int) (*Hub, error) {
	if r == nil {
		return nil, ErrNilRouter
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queue:  make(chan job, queueSize),
		router: r,
	}, nil
}

// Start launches the processing goroutine.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	log.Println("Starting event hub...")
	go h.run(ctx, h.shutdown, h.done)
	return nil
}

// Stop ends processing and waits for the goroutine to exit. Queued jobs
// that were not yet processed are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping event hub...")
	<-done
	return nil
}

// Running reports whether the hub accepts work.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues a client event. It blocks while the queue is full so
// events from one connection keep their order.
func (h *Hub) Dispatch(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	return h.enqueue(ctx, job{kind: jobEvent, conn: conn, env: env})
}

// Disconnect queues the purge of conn from every session.
func (h *Hub) Disconnect(ctx context.Context, conn interfaces.Connection) error {
	return h.enqueue(ctx, job{kind: jobDisconnect, conn: conn})
}

// Submit runs a connection-less submission on the hub timeline and waits
// for the outcome.
func (h *Hub) Submit(ctx context.Context, code, text string) (types.Question, error) {
	result := make(chan submitResult, 1)
	if err := h.enqueue(ctx, job{kind: jobSubmit, code: code, text: text, result: result}); err != nil {
		return types.Question{}, err
	}

	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()

	select {
	case res := <-result:
		return res.question, res.err
	case <-done:
		return types.Question{}, ErrHubNotRunning
	case <-ctx.Done():
		return types.Question{}, ctx.Err()
	}
}

func (h *Hub) enqueue(ctx context.Context, j job) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdown
	h.mu.RUnlock()

	select {
	case h.queue <- j:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case j := <-h.queue:
			h.handle(ctx, j)

		case <-ticker.C:
			h.router.CleanupRateLimits()

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, j job) {
	switch j.kind {
	case jobEvent:
		if err := h.router.Dispatch(ctx, j.conn, j.env); err != nil {
			logDispatchError(j.conn, j.env.Event, err)
		}

	case jobDisconnect:
		h.router.Disconnect(j.conn)

	case jobSubmit:
		q, err := h.router.Submit(ctx, nil, j.code, j.text)
		j.result <- submitResult{question: q, err: err}
	}
}

// logDispatchError keeps routine outcomes quiet; the router already
// logged session misses and content rejections.
func logDispatchError(conn interfaces.Connection, event string, err error) {
	switch {
	case router.IsPolicyRejection(err),
		errors.Is(err, interfaces.ErrSessionNotFound),
		errors.Is(err, router.ErrQuestionNotFound):
		return
	default:
		log.Printf("Event %s from %s failed: %v", event, conn.ID(), err)
	}
}
