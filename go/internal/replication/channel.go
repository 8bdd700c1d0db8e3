package replication

// Channel is a point-to-point message channel to one peer.
type Channel interface {
	ID() string
	// IsOpen reports whether the channel can currently carry messages.
	IsOpen() bool
	// Send queues data for delivery without blocking.
	Send(data []byte) error
	Close() error
}

// EventKind identifies a channel lifecycle or data event.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventData  EventKind = "data"
	EventClose EventKind = "close"
	EventError EventKind = "error"
)

// Event is emitted by a transport for a channel. Channel may be nil for an
// EventError raised before a channel existed (a failed dial).
type Event struct {
	Kind    EventKind
	Channel Channel
	Data    []byte
	Err     error
}

// Sink receives channel events.
type Sink func(Event)

// Acceptor is notified of each inbound connection attempt.
type Acceptor interface {
	OnConnection(ch Channel)
}
