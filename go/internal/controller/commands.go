package controller

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/presets"
	"github.com/mcdev12/timersync/go/internal/session"
	"github.com/mcdev12/timersync/go/internal/timers"
)

// Command is a user action applied on the controller goroutine.
type Command interface {
	apply(c *Controller) error
}

type query struct{}

func (query) apply(*Controller) error { return nil }

// AddTimer creates a timer at the end of the collection.
type AddTimer struct {
	Label           string
	DurationSeconds int
}

func (cmd AddTimer) apply(c *Controller) error {
	if !c.role.Authoritative() {
		return ErrReadOnly
	}
	next, err := timers.Add(c.timers, cmd.Label, cmd.DurationSeconds)
	if err != nil {
		return err
	}
	c.commit(next)
	return nil
}

// ToggleTimer starts or pauses one timer.
type ToggleTimer struct {
	ID string
}

func (cmd ToggleTimer) apply(c *Controller) error {
	return c.updateTimer(cmd.ID, timers.Toggle)
}

// ResetTimer restores one timer to its initial duration.
type ResetTimer struct {
	ID string
}

func (cmd ResetTimer) apply(c *Controller) error {
	return c.updateTimer(cmd.ID, timers.Reset)
}

// DeleteTimer removes one timer; unknown ids are ignored.
type DeleteTimer struct {
	ID string
}

func (cmd DeleteTimer) apply(c *Controller) error {
	if !c.role.Authoritative() {
		return ErrReadOnly
	}
	c.commit(timers.Delete(c.timers, cmd.ID))
	return nil
}

// GlobalControl starts, pauses or resets every timer.
type GlobalControl struct {
	Action timers.GlobalAction
}

func (cmd GlobalControl) apply(c *Controller) error {
	if !c.role.Authoritative() {
		return ErrReadOnly
	}
	c.commit(timers.ApplyGlobal(c.timers, cmd.Action))
	return nil
}

// ApplyPresets replaces the collection with generated presets. An empty
// result leaves the collection alone.
type ApplyPresets struct {
	Presets []presets.Preset
}

func (cmd ApplyPresets) apply(c *Controller) error {
	if !c.role.Authoritative() {
		return ErrReadOnly
	}
	next := timers.FromPresets(cmd.Presets)
	if len(next) == 0 {
		return nil
	}
	if len(cmd.Presets) > models.MaxTimers {
		log.Debug().
			Int("generated", len(cmd.Presets)).
			Int("kept", len(next)).
			Msg("truncated presets")
	}
	c.commit(next)
	return nil
}

// SetRole switches the session role.
type SetRole struct {
	Role session.Role
}

func (cmd SetRole) apply(c *Controller) error {
	c.setRole(cmd.Role)
	return nil
}

// SetTarget records the master identity a slave should connect to.
type SetTarget struct {
	Target string
}

func (cmd SetTarget) apply(c *Controller) error {
	if c.role != session.RoleSlave {
		return ErrNotSlave
	}
	c.target = session.Canonical(cmd.Target)
	return nil
}

// Connect starts linking a slave to its master. A non-empty Target replaces
// the recorded one.
type Connect struct {
	Target string
}

func (cmd Connect) apply(c *Controller) error {
	if c.role != session.RoleSlave {
		return ErrNotSlave
	}
	if cmd.Target != "" {
		if c.status != session.StatusDisconnected {
			return ErrLinkActive
		}
		c.target = session.Canonical(cmd.Target)
	}
	if c.target == "" {
		return ErrNoTarget
	}
	if c.status != session.StatusDisconnected {
		return ErrLinkActive
	}
	c.connect()
	return nil
}

func (c *Controller) updateTimer(id string, fn func(models.Timer) models.Timer) error {
	if !c.role.Authoritative() {
		return ErrReadOnly
	}
	next, found := timers.Update(c.timers, id, fn)
	if !found {
		return ErrTimerNotFound
	}
	c.commit(next)
	return nil
}
