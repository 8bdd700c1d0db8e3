package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/discovery"
	"github.com/mcdev12/timersync/go/internal/scheduler"
	"github.com/mcdev12/timersync/go/internal/session"
)

// setRole performs a role transition. Everything held for the old role is
// released before the new role acquires anything.
func (c *Controller) setRole(role session.Role) {
	if role == c.role {
		return
	}
	prev := c.role

	c.leaveRole()
	c.role = role
	c.enterRole()

	log.Info().
		Str("from", string(prev)).
		Str("to", string(role)).
		Str("session_id", c.config.Identity.String()).
		Msg("role changed")
}

func (c *Controller) leaveRole() {
	c.stopTicker()
	c.repl.Reset()
	c.forgetAttempt()
	c.roleGen++
	if reg := c.registration; reg != nil {
		c.registration = nil
		go c.withdraw(reg)
	}
	c.status = session.StatusDisconnected
	c.target = ""
}

func (c *Controller) enterRole() {
	if c.role.Authoritative() {
		c.startTicker()
	}
	if c.role == session.RoleMaster {
		c.advertise()
	}
}

// teardown releases every resource on shutdown. The registration is
// withdrawn synchronously so the identity does not outlive the process.
func (c *Controller) teardown() {
	c.stopTicker()
	c.repl.Reset()
	c.forgetAttempt()
	c.roleGen++
	if reg := c.registration; reg != nil {
		c.registration = nil
		c.withdraw(reg)
	}
}

func (c *Controller) startTicker() {
	c.tickGen++
	gen := c.tickGen
	c.ticker = scheduler.Start(c.clock, c.config.TickInterval, func(ctx context.Context, at time.Time) {
		c.post(ctx, tickEvent{gen: gen, at: at})
	})
}

func (c *Controller) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tickGen++
}

func (c *Controller) forgetAttempt() {
	c.attemptSeq++
	if c.attemptCancel != nil {
		c.attemptCancel()
		c.attemptCancel = nil
	}
}

// advertise registers the identity at the advertised address. The result
// comes back as a registeredEvent tagged with the current role generation.
func (c *Controller) advertise() {
	if c.registry == nil || c.config.AdvertiseAddress == "" {
		return
	}
	gen := c.roleGen
	id := c.config.Identity.String()
	address := c.config.AdvertiseAddress
	timeout := c.config.RegisterTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		reg, err := c.registry.Register(ctx, id, address)
		if !c.post(context.Background(), registeredEvent{gen: gen, reg: reg, err: err}) && reg != nil {
			c.withdraw(reg)
		}
	}()
}

func (c *Controller) handleRegistered(e registeredEvent) {
	if e.err != nil {
		log.Error().
			Err(e.err).
			Str("session_id", c.config.Identity.String()).
			Msg("failed to advertise session")
		return
	}
	if e.gen != c.roleGen || c.role != session.RoleMaster {
		go c.withdraw(e.reg)
		return
	}
	c.registration = e.reg
}

func (c *Controller) withdraw(reg discovery.Registration) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.RegisterTimeout)
	defer cancel()
	if err := reg.Withdraw(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", c.config.Identity.String()).
			Msg("failed to withdraw session advertisement")
	}
}
