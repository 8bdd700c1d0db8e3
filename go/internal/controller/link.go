package controller

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/replication"
	"github.com/mcdev12/timersync/go/internal/session"
)

// handleAccept admits or rejects an inbound channel and greets an admitted
// peer with the current snapshot.
func (c *Controller) handleAccept(ch replication.Channel) {
	if !c.repl.Accept(c.role, ch) {
		return
	}
	if err := c.repl.SendTo(ch, c.timers, c.clock.Now()); err != nil {
		log.Warn().Err(err).Str("channel_id", ch.ID()).Msg("failed to send initial snapshot")
	}
}

// handlePeerEvent handles events of channels accepted as master.
func (c *Controller) handlePeerEvent(ev replication.Event) {
	switch ev.Kind {
	case replication.EventClose, replication.EventError:
		if ev.Err != nil {
			log.Debug().Err(ev.Err).Str("channel_id", ev.Channel.ID()).Msg("peer channel failed")
		}
		c.repl.Remove(ev.Channel)
	case replication.EventData:
		log.Debug().Str("channel_id", ev.Channel.ID()).Msg("ignoring data from peer")
	}
}

// connect starts an asynchronous connection attempt to the current target.
func (c *Controller) connect() {
	c.status = session.StatusConnecting
	c.attemptSeq++
	seq := c.attemptSeq

	ctx, cancel := context.WithCancel(context.Background())
	c.attemptCancel = cancel

	target := c.target.String()
	timeout := c.config.ConnectTimeout
	// Link events are posted without the attempt context so that a channel
	// opening after the attempt was forgotten still reaches the loop and
	// gets closed there.
	sink := func(ev replication.Event) {
		c.post(context.Background(), linkEvent{seq: seq, ev: ev})
	}

	log.Info().Str("target", target).Msg("connecting to master")
	go func() {
		dialCtx, cancelDial := context.WithTimeout(ctx, timeout)
		defer cancelDial()

		if _, err := c.connector.Connect(dialCtx, target, sink); err != nil {
			c.post(context.Background(), linkEvent{
				seq: seq,
				ev:  replication.Event{Kind: replication.EventError, Err: err},
			})
		}
	}()
}

// handleLinkEvent drives the slave connection state machine.
func (c *Controller) handleLinkEvent(e linkEvent) {
	ev := e.ev
	stale := e.seq != c.attemptSeq || c.role != session.RoleSlave

	switch ev.Kind {
	case replication.EventOpen:
		if stale {
			_ = ev.Channel.Close()
			return
		}
		c.repl.Attach(ev.Channel)
		c.status = session.StatusConnected
		log.Info().
			Str("target", c.target.String()).
			Str("channel_id", ev.Channel.ID()).
			Msg("linked to master")

	case replication.EventData:
		if stale || ev.Channel != c.repl.Link() {
			return
		}
		if next, ok := c.repl.HandleInbound(ev.Data); ok {
			c.timers = next
		}

	case replication.EventClose, replication.EventError:
		if stale {
			return
		}
		if ev.Channel != nil && ev.Channel != c.repl.Link() {
			return
		}
		c.repl.Detach()
		c.status = session.StatusDisconnected
		if c.attemptCancel != nil {
			c.attemptCancel()
			c.attemptCancel = nil
		}
		log.Warn().
			Err(ev.Err).
			Str("target", c.target.String()).
			Str("event", string(ev.Kind)).
			Msg("master link lost")
	}
}
