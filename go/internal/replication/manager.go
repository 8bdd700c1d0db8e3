package replication

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/session"
)

// Manager owns the replication channels of one process: the open-channel set
// of a master, or the single inbound link of a slave. It is driven from the
// controller loop and is not safe for concurrent use.
type Manager struct {
	sourceID session.Identity
	channels []Channel
	link     Channel
}

// BroadcastResult summarizes one broadcast.
type BroadcastResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// NewManager creates a manager that stamps outbound messages with sourceID.
func NewManager(sourceID session.Identity) *Manager {
	return &Manager{sourceID: sourceID}
}

// Accept admits an inbound channel. A process that is not master never keeps
// a replication peer: the channel is closed and false is returned.
func (m *Manager) Accept(role session.Role, ch Channel) bool {
	if role != session.RoleMaster {
		log.Debug().
			Str("channel_id", ch.ID()).
			Str("role", string(role)).
			Msg("rejecting inbound channel")
		_ = ch.Close()
		return false
	}
	for _, existing := range m.channels {
		if existing == ch {
			return true
		}
	}
	m.channels = append(m.channels, ch)

	log.Info().
		Str("channel_id", ch.ID()).
		Int("peers", len(m.channels)).
		Msg("peer channel accepted")
	return true
}

// Remove drops a channel from the open set. It reports whether it was a member.
func (m *Manager) Remove(ch Channel) bool {
	for i, existing := range m.channels {
		if existing == ch {
			m.channels = append(m.channels[:i:i], m.channels[i+1:]...)
			log.Info().
				Str("channel_id", ch.ID()).
				Int("peers", len(m.channels)).
				Msg("peer channel removed")
			return true
		}
	}
	return false
}

// Count returns the number of channels in the open set.
func (m *Manager) Count() int {
	return len(m.channels)
}

// Broadcast sends one snapshot to every member of the open set, in order.
// Closed members are skipped and a failed send only affects its own channel.
func (m *Manager) Broadcast(timers []models.Timer, at time.Time) BroadcastResult {
	var res BroadcastResult
	if len(m.channels) == 0 {
		return res
	}

	data, err := Encode(NewSyncMessage(m.sourceID.String(), timers, at))
	if err != nil {
		log.Error().Err(err).Msg("failed to encode sync message for broadcast")
		return res
	}

	for _, ch := range m.channels {
		if !ch.IsOpen() {
			res.Skipped++
			continue
		}
		if err := ch.Send(data); err != nil {
			res.Failed++
			log.Warn().
				Err(err).
				Str("channel_id", ch.ID()).
				Msg("dropping sync frame for peer")
			continue
		}
		res.Sent++
	}

	log.Debug().
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("sync message broadcasted")
	return res
}

// SendTo sends one snapshot to a single channel, used to greet a new peer.
func (m *Manager) SendTo(ch Channel, timers []models.Timer, at time.Time) error {
	data, err := Encode(NewSyncMessage(m.sourceID.String(), timers, at))
	if err != nil {
		return err
	}
	return ch.Send(data)
}

// Attach sets the slave's link to its master, closing any previous one.
func (m *Manager) Attach(ch Channel) {
	if m.link != nil && m.link != ch {
		_ = m.link.Close()
	}
	m.link = ch
}

// Link returns the slave's current link, if any.
func (m *Manager) Link() Channel {
	return m.link
}

// Detach forgets the slave link without closing it.
func (m *Manager) Detach() {
	m.link = nil
}

// HandleInbound decodes a message received by a slave. It returns the timer
// collection to install, or false when the message is to be ignored.
func (m *Manager) HandleInbound(data []byte) ([]models.Timer, bool) {
	msg, err := Decode(data)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring malformed inbound message")
		return nil, false
	}
	if msg.Type != MessageTypeSyncUpdate {
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring inbound message of unknown type")
		return nil, false
	}
	if msg.Payload.Timers == nil {
		log.Debug().Str("source_id", msg.SourceID).Msg("ignoring sync message without timers")
		return nil, false
	}

	timers := *msg.Payload.Timers
	if len(timers) > models.MaxTimers {
		log.Debug().Int("timers", len(timers)).Msg("ignoring oversized sync message")
		return nil, false
	}
	seen := make(map[string]struct{}, len(timers))
	for _, t := range timers {
		if err := t.Validate(); err != nil {
			log.Debug().Err(err).Msg("ignoring sync message with malformed timer")
			return nil, false
		}
		if _, dup := seen[t.ID]; dup {
			log.Debug().Str("timer_id", t.ID).Msg("ignoring sync message with duplicate timer id")
			return nil, false
		}
		seen[t.ID] = struct{}{}
	}
	return timers, true
}

// Reset closes and forgets every channel, including the slave link.
func (m *Manager) Reset() {
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			log.Debug().Err(err).Str("channel_id", ch.ID()).Msg("error closing peer channel")
		}
	}
	if n := len(m.channels); n > 0 {
		log.Info().Int("peers", n).Msg("closed peer channels")
	}
	m.channels = nil

	if m.link != nil {
		if err := m.link.Close(); err != nil {
			log.Debug().Err(err).Str("channel_id", m.link.ID()).Msg("error closing master link")
		}
		m.link = nil
	}
}
