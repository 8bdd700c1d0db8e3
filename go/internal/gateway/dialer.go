package gateway

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/discovery"
	"github.com/mcdev12/timersync/go/internal/replication"
	"github.com/mcdev12/timersync/go/internal/session"
)

// Dialer opens the slave side of a replication channel.
type Dialer struct {
	resolver discovery.Resolver
	dialer   *websocket.Dialer
	config   ConnectionConfig
}

// NewDialer creates a dialer that locates masters through resolver.
func NewDialer(resolver discovery.Resolver, config ConnectionConfig) *Dialer {
	return &Dialer{
		resolver: resolver,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		config: config,
	}
}

// Connect resolves target and dials it. The returned channel's first event
// on sink is open.
func (d *Dialer) Connect(ctx context.Context, target string, sink replication.Sink) (replication.Channel, error) {
	id := session.Canonical(target)
	address, err := d.resolver.Resolve(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}

	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	q := u.Query()
	q.Set(SessionParam, id.String())
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	connection := newConnection(conn, id.String(), d.config, sink)
	log.Info().
		Str("connection_id", connection.ID()).
		Str("target", id.String()).
		Str("address", u.Redacted()).
		Msg("connected to master")

	connection.start()
	return connection, nil
}
