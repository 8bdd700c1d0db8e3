package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS-backed registry.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	RequestTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// DefaultNATSConfig returns default NATS registry configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		SubjectPrefix:  "timersync.discovery",
		RequestTimeout: 3 * time.Second,
		MaxReconnects:  -1, // Infinite
		ReconnectWait:  2 * time.Second,
	}
}

// NATSRegistry advertises a master by answering requests on
// <prefix>.<SESSION>; slaves resolve with a request/reply round trip.
type NATSRegistry struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSRegistry connects to NATS.
func NewNATSRegistry(config NATSConfig) (*NATSRegistry, error) {
	opts := []nats.Option{
		nats.Name("timersync-discovery"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSRegistry{nc: nc, config: config}, nil
}

func (r *NATSRegistry) subject(sessionID string) string {
	return r.config.SubjectPrefix + "." + canonical(sessionID)
}

// Register answers discovery requests for sessionID until withdrawn.
func (r *NATSRegistry) Register(ctx context.Context, sessionID, address string) (Registration, error) {
	subject := r.subject(sessionID)
	sub, err := r.nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := msg.Respond([]byte(address)); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("failed to answer discovery request")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := r.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("address", address).
		Msg("session advertised on NATS")
	return natsRegistration{nc: r.nc, sub: sub}, nil
}

// Resolve asks the master registered for sessionID for its address.
func (r *NATSRegistry) Resolve(ctx context.Context, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	msg, err := r.nc.RequestWithContext(ctx, r.subject(sessionID), nil)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, canonical(sessionID))
		}
		return "", fmt.Errorf("discovery request: %w", err)
	}
	if len(msg.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, canonical(sessionID))
	}
	return string(msg.Data), nil
}

// Close drains the NATS connection.
func (r *NATSRegistry) Close() error {
	return r.nc.Drain()
}

type natsRegistration struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// Withdraw stops answering and waits until the server has dropped the
// interest. Withdrawing twice is not an error.
func (n natsRegistration) Withdraw(ctx context.Context) error {
	if err := n.sub.Unsubscribe(); err != nil {
		if errors.Is(err, nats.ErrBadSubscription) {
			return nil
		}
		return fmt.Errorf("unsubscribe %s: %w", n.sub.Subject, err)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush unsubscribe: %w", err)
	}
	return nil
}
