package replication

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/timersync/go/internal/models"
)

// MessageType discriminates replication messages.
type MessageType string

const MessageTypeSyncUpdate MessageType = "SYNC_UPDATE"

// SyncMessage is a full-state snapshot sent from a master to its slaves.
type SyncMessage struct {
	Type     MessageType `json:"type"`
	SourceID string      `json:"sourceId"`
	Payload  SyncPayload `json:"payload"`
}

// SyncPayload carries the timer collection and the instant it was taken,
// in epoch milliseconds.
type SyncPayload struct {
	Timers    *[]models.Timer `json:"timers,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewSyncMessage builds a snapshot message.
func NewSyncMessage(sourceID string, timers []models.Timer, at time.Time) SyncMessage {
	snapshot := make([]models.Timer, len(timers))
	copy(snapshot, timers)
	return SyncMessage{
		Type:     MessageTypeSyncUpdate,
		SourceID: sourceID,
		Payload: SyncPayload{
			Timers:    &snapshot,
			Timestamp: at.UnixMilli(),
		},
	}
}

// Encode marshals a message for the wire.
func Encode(msg SyncMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode sync message: %w", err)
	}
	return data, nil
}

// Decode unmarshals a wire message. It does not judge relevance; see
// Manager.HandleInbound.
func Decode(data []byte) (SyncMessage, error) {
	var msg SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SyncMessage{}, fmt.Errorf("decode sync message: %w", err)
	}
	return msg, nil
}
