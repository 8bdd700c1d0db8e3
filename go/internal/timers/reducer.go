// Package timers holds the pure state transitions for a single countdown and
// for an ordered collection of them. Nothing here schedules, logs or blocks;
// every function returns a new value and leaves its input untouched.
package timers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/presets"
)

var (
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrCapacity        = fmt.Errorf("collection already holds %d timers", models.MaxTimers)
)

// GlobalAction is a control applied to every timer at once.
type GlobalAction string

const (
	GlobalStart GlobalAction = "START"
	GlobalPause GlobalAction = "PAUSE"
	GlobalReset GlobalAction = "RESET"
)

// ParseGlobalAction accepts START, PAUSE or RESET in any case.
func ParseGlobalAction(s string) (GlobalAction, error) {
	switch a := GlobalAction(strings.ToUpper(strings.TrimSpace(s))); a {
	case GlobalStart, GlobalPause, GlobalReset:
		return a, nil
	}
	return "", fmt.Errorf("unknown global action %q", s)
}

// New creates an idle timer with a fresh id.
func New(label string, durationSeconds int) (models.Timer, error) {
	if durationSeconds <= 0 {
		return models.Timer{}, ErrInvalidDuration
	}
	return models.Timer{
		ID:             uuid.NewString(),
		Label:          label,
		InitialSeconds: durationSeconds,
		CurrentSeconds: durationSeconds,
		Status:         models.TimerStatusIdle,
	}, nil
}

// Add appends a new timer. On error the collection is returned unchanged.
func Add(collection []models.Timer, label string, durationSeconds int) ([]models.Timer, error) {
	if len(collection) >= models.MaxTimers {
		return collection, ErrCapacity
	}
	t, err := New(label, durationSeconds)
	if err != nil {
		return collection, err
	}
	next := make([]models.Timer, 0, len(collection)+1)
	next = append(next, collection...)
	return append(next, t), nil
}

// Tick advances a running timer by one second.
func Tick(t models.Timer) models.Timer {
	if t.Status != models.TimerStatusRunning {
		return t
	}
	if t.CurrentSeconds <= 1 {
		t.CurrentSeconds = 0
		t.Status = models.TimerStatusFinished
		return t
	}
	t.CurrentSeconds--
	return t
}

// Toggle flips running and paused. Finished timers stay finished until reset.
func Toggle(t models.Timer) models.Timer {
	switch t.Status {
	case models.TimerStatusRunning:
		t.Status = models.TimerStatusPaused
	case models.TimerStatusFinished:
	default:
		t.Status = models.TimerStatusRunning
	}
	return t
}

// Reset restores the initial duration from any status.
func Reset(t models.Timer) models.Timer {
	t.CurrentSeconds = t.InitialSeconds
	t.Status = models.TimerStatusIdle
	return t
}

// Delete removes the timer with the given id, if present.
func Delete(collection []models.Timer, id string) []models.Timer {
	next := make([]models.Timer, 0, len(collection))
	for _, t := range collection {
		if t.ID != id {
			next = append(next, t)
		}
	}
	return next
}

// Update applies fn to the timer with the given id and reports whether it was found.
func Update(collection []models.Timer, id string, fn func(models.Timer) models.Timer) ([]models.Timer, bool) {
	next := make([]models.Timer, len(collection))
	found := false
	for i, t := range collection {
		if t.ID == id {
			t = fn(t)
			found = true
		}
		next[i] = t
	}
	return next, found
}

// TickAll ticks every timer in collection order.
func TickAll(collection []models.Timer) []models.Timer {
	return mapAll(collection, Tick)
}

// ApplyGlobal applies a global control to the whole collection.
func ApplyGlobal(collection []models.Timer, action GlobalAction) []models.Timer {
	switch action {
	case GlobalStart:
		return mapAll(collection, func(t models.Timer) models.Timer {
			if t.Status != models.TimerStatusFinished {
				t.Status = models.TimerStatusRunning
			}
			return t
		})
	case GlobalPause:
		return mapAll(collection, func(t models.Timer) models.Timer {
			if t.Status == models.TimerStatusRunning {
				t.Status = models.TimerStatusPaused
			}
			return t
		})
	case GlobalReset:
		return mapAll(collection, Reset)
	}
	return mapAll(collection, func(t models.Timer) models.Timer { return t })
}

// FromPresets builds a fresh collection from the first MaxTimers valid presets.
func FromPresets(ps []presets.Preset) []models.Timer {
	next := make([]models.Timer, 0, min(len(ps), models.MaxTimers))
	for _, p := range ps {
		if len(next) == models.MaxTimers {
			break
		}
		t, err := New(p.Label, p.DurationSeconds)
		if err != nil {
			continue
		}
		next = append(next, t)
	}
	return next
}

// Clone copies a collection so callers can hand it across goroutines.
func Clone(collection []models.Timer) []models.Timer {
	next := make([]models.Timer, len(collection))
	copy(next, collection)
	return next
}

func mapAll(collection []models.Timer, fn func(models.Timer) models.Timer) []models.Timer {
	next := make([]models.Timer, len(collection))
	for i, t := range collection {
		next[i] = fn(t)
	}
	return next
}
