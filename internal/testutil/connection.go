// Package testutil holds fakes shared by package tests.
package testutil

import (
	"errors"
	"sync"
)

// ErrFakeSendFailed is returned by a FakeConnection configured to fail.
var ErrFakeSendFailed = errors.New("fake send failed")

// Sent is one recorded delivery.
type Sent struct {
	Event   string
	Payload interface{}
}

// FakeConnection implements interfaces.Connection and records every Send.
type FakeConnection struct {
	id string

	mu   sync.Mutex
	sent []Sent
	fail bool
}

// NewFakeConnection returns a connection with the given id.
func NewFakeConnection(id string) *FakeConnection {
	return &FakeConnection{id: id}
}

func (c *FakeConnection) ID() string {
	return c.id
}

func (c *FakeConnection) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return ErrFakeSendFailed
	}
	c.sent = append(c.sent, Sent{Event: event, Payload: payload})
	return nil
}

// FailSends makes every following Send return ErrFakeSendFailed.
func (c *FakeConnection) FailSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = true
}

// Sent returns a copy of everything delivered so far.
func (c *FakeConnection) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := make([]Sent, len(c.sent))
	copy(sent, c.sent)
	return sent
}

// Events returns only the event names delivered so far.
func (c *FakeConnection) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]string, len(c.sent))
	for i, s := range c.sent {
		events[i] = s.Event
	}
	return events
}

// Reset forgets recorded deliveries.
func (c *FakeConnection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
