package interfaces

//go:generate mockgen -package=mocks -destination=mocks/mock_connection.go askboard/pkg/interfaces Connection

// Connection is the capability the session core needs from a transport
// connection: a stable identity and a way to push an event.
type Connection interface {
	// ID is unique per live connection and used for membership tests.
	ID() string

	// Send queues an event for delivery. It must not block on network I/O.
	Send(event string, payload interface{}) error
}
