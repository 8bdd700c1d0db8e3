package gateway

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/replication"
)

var (
	// ErrSendBufferFull is returned when a peer is not draining its queue.
	ErrSendBufferFull   = errors.New("connection send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendQueueSize    int
	CheckOrigin      func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024, // a full snapshot of MaxTimers timers
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendQueueSize:    16,
		CheckOrigin: func(r *http.Request) bool {
			// Peers are other timersync processes, not browsers.
			return true
		},
	}
}

// Connection is a replication.Channel over one WebSocket.
type Connection struct {
	id         string
	peer       string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	config     ConnectionConfig
	sink       replication.Sink
	open       atomic.Bool
	localClose atomic.Bool
	closeOnce  sync.Once
	openedAt   time.Time
}

var _ replication.Channel = (*Connection)(nil)

func newConnection(conn *websocket.Conn, peer string, config ConnectionConfig, sink replication.Sink) *Connection {
	c := &Connection{
		id:       uuid.New().String(),
		peer:     peer,
		conn:     conn,
		send:     make(chan []byte, config.SendQueueSize),
		done:     make(chan struct{}),
		config:   config,
		sink:     sink,
		openedAt: time.Now(),
	}
	c.open.Store(true)
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) IsOpen() bool { return c.open.Load() }

// Send queues data without blocking. A slow peer loses the frame.
func (c *Connection) Send(data []byte) error {
	if !c.open.Load() {
		return ErrConnectionClosed
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the pumps and sends a normal close frame. Safe to call more than once.
func (c *Connection) Close() error {
	c.localClose.Store(true)
	c.shutdown()
	return nil
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}

// start runs the pumps. The read pump emits open first and exactly one
// close or error event last.
func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.config.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to send close frame")
			}
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				c.open.Store(false)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				c.open.Store(false)
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	c.emit(replication.Event{Kind: replication.EventOpen, Channel: c})

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	var readErr error
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}

		c.emit(replication.Event{Kind: replication.EventData, Channel: c, Data: message})
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	c.shutdown()

	if isExpectedClose(readErr) || c.localClose.Load() {
		log.Info().
			Str("connection_id", c.id).
			Str("peer", c.peer).
			Dur("connection_age", time.Since(c.openedAt)).
			Msg("WebSocket connection closed")
		c.emit(replication.Event{Kind: replication.EventClose, Channel: c})
		return
	}

	log.Warn().
		Err(readErr).
		Str("connection_id", c.id).
		Str("peer", c.peer).
		Dur("connection_age", time.Since(c.openedAt)).
		Msg("unexpected WebSocket close error")
	c.emit(replication.Event{Kind: replication.EventError, Channel: c, Err: readErr})
}

func (c *Connection) emit(ev replication.Event) {
	if c.sink != nil {
		c.sink(ev)
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
