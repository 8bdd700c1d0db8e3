package models

import (
	"errors"
	"fmt"
)

// MaxTimers is the upper bound on the number of timers a session holds.
const MaxTimers = 6

// TimerStatus defines the lifecycle state of a timer.
type TimerStatus string

const (
	TimerStatusIdle     TimerStatus = "idle"
	TimerStatusRunning  TimerStatus = "running"
	TimerStatusPaused   TimerStatus = "paused"
	TimerStatusFinished TimerStatus = "finished"
)

// Valid reports whether s is one of the known statuses.
func (s TimerStatus) Valid() bool {
	switch s {
	case TimerStatusIdle, TimerStatusRunning, TimerStatusPaused, TimerStatusFinished:
		return true
	}
	return false
}

// Timer represents one countdown.
type Timer struct {
	ID             string      `json:"id"`
	Label          string      `json:"label"`
	InitialSeconds int         `json:"initialSeconds"`
	CurrentSeconds int         `json:"currentSeconds"`
	Status         TimerStatus `json:"status"`
}

var ErrInvalidTimer = errors.New("invalid timer")

// Validate checks the structural invariants of a timer, typically one that
// arrived from a peer.
func (t Timer) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidTimer)
	case t.InitialSeconds <= 0:
		return fmt.Errorf("%w: initialSeconds %d", ErrInvalidTimer, t.InitialSeconds)
	case t.CurrentSeconds < 0 || t.CurrentSeconds > t.InitialSeconds:
		return fmt.Errorf("%w: currentSeconds %d out of range", ErrInvalidTimer, t.CurrentSeconds)
	case !t.Status.Valid():
		return fmt.Errorf("%w: status %q", ErrInvalidTimer, t.Status)
	}
	return nil
}
