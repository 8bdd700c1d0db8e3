package controller

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/discovery"
	"github.com/mcdev12/timersync/go/internal/models"
	"github.com/mcdev12/timersync/go/internal/presets"
	"github.com/mcdev12/timersync/go/internal/replication"
	"github.com/mcdev12/timersync/go/internal/scheduler"
	"github.com/mcdev12/timersync/go/internal/session"
	"github.com/mcdev12/timersync/go/internal/timers"
)

var (
	ErrReadOnly      = errors.New("timers are read-only while in slave role")
	ErrNotSlave      = errors.New("operation requires slave role")
	ErrNoTarget      = errors.New("no master identity set")
	ErrLinkActive    = errors.New("master link already active")
	ErrTimerNotFound = errors.New("timer not found")
	ErrStopped       = errors.New("controller stopped")
)

// Connector opens the slave side of a replication channel to the master
// identified by target. Events for the channel are delivered to sink,
// starting with open.
type Connector interface {
	Connect(ctx context.Context, target string, sink replication.Sink) (replication.Channel, error)
}

// Config holds controller settings.
type Config struct {
	Identity         session.Identity
	TickInterval     time.Duration
	ConnectTimeout   time.Duration
	RegisterTimeout  time.Duration
	AdvertiseAddress string
	EventBufferSize  int
}

// DefaultConfig returns default controller configuration
func DefaultConfig() Config {
	return Config{
		Identity:        session.NewIdentity(),
		TickInterval:    time.Second,
		ConnectTimeout:  10 * time.Second,
		RegisterTimeout: 5 * time.Second,
		EventBufferSize: 256,
	}
}

// State is a point-in-time view of the controller for the user surface.
type State struct {
	SessionID string                   `json:"sessionId"`
	Role      session.Role             `json:"role"`
	Status    session.ConnectionStatus `json:"status"`
	Target    string                   `json:"target,omitempty"`
	Peers     int                      `json:"peers"`
	MaxTimers int                      `json:"maxTimers"`
	Timers    []models.Timer           `json:"timers"`
}

// Controller owns the timer collection, the session role and the
// replication channels. All of them are only touched by the Run goroutine;
// every other goroutine talks to it by posting events.
type Controller struct {
	config    Config
	clock     clockwork.Clock
	connector Connector
	registry  discovery.Registry
	generator presets.Generator

	events chan any
	quit   chan struct{}

	// Owned by the Run goroutine.
	timers        []models.Timer
	role          session.Role
	status        session.ConnectionStatus
	target        session.Identity
	repl          *replication.Manager
	ticker        *scheduler.Ticker
	tickGen       uint64
	attemptSeq    uint64
	attemptCancel context.CancelFunc
	roleGen       uint64
	registration  discovery.Registration
}

// Option configures optional collaborators.
type Option func(*Controller)

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithRegistry advertises the session while master.
func WithRegistry(registry discovery.Registry) Option {
	return func(c *Controller) { c.registry = registry }
}

// WithGenerator sets the preset generator.
func WithGenerator(generator presets.Generator) Option {
	return func(c *Controller) { c.generator = generator }
}

// New creates a controller in standalone role. Call Run to start it.
func New(config Config, connector Connector, opts ...Option) *Controller {
	if config.Identity == "" {
		config.Identity = session.NewIdentity()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.RegisterTimeout <= 0 {
		config.RegisterTimeout = 5 * time.Second
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 256
	}

	c := &Controller{
		config:    config,
		clock:     clockwork.NewRealClock(),
		connector: connector,
		generator: presets.Disabled{},
		events:    make(chan any, config.EventBufferSize),
		quit:      make(chan struct{}),
		timers:    []models.Timer{},
		role:      session.RoleStandalone,
		status:    session.StatusDisconnected,
		repl:      replication.NewManager(config.Identity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the session identity.
func (c *Controller) Identity() session.Identity {
	return c.config.Identity
}

// Run processes events until ctx is cancelled, then releases every
// resource held for the current role.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().
		Str("session_id", c.config.Identity.String()).
		Str("role", string(c.role)).
		Msg("controller started")

	c.enterRole()
	defer close(c.quit)

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			log.Info().Str("session_id", c.config.Identity.String()).Msg("controller stopped")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Dispatch applies cmd on the controller goroutine and returns the state
// that results.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) (State, error) {
	reply := make(chan commandResult, 1)
	select {
	case c.events <- commandEvent{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-c.quit:
		return State{}, ErrStopped
	}

	select {
	case res := <-reply:
		return res.state, res.err
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-c.quit:
		return State{}, ErrStopped
	}
}

// State returns the current state.
func (c *Controller) State(ctx context.Context) (State, error) {
	return c.Dispatch(ctx, query{})
}

// GeneratePresets asks the generator for presets and, if any come back,
// replaces the collection with them. The generator runs off the controller
// goroutine.
func (c *Controller) GeneratePresets(ctx context.Context, prompt string) (State, error) {
	st, err := c.State(ctx)
	if err != nil {
		return State{}, err
	}
	if !st.Role.Authoritative() {
		return st, ErrReadOnly
	}

	generated := c.generator.GeneratePresets(ctx, prompt)
	log.Info().
		Str("prompt", prompt).
		Int("presets", len(generated)).
		Msg("presets generated")
	return c.Dispatch(ctx, ApplyPresets{Presets: generated})
}

// OnConnection implements replication.Acceptor for the master listener.
func (c *Controller) OnConnection(ch replication.Channel) {
	if !c.post(context.Background(), acceptEvent{ch: ch}) {
		_ = ch.Close()
	}
}

// HandleChannelEvent is the replication.Sink for channels accepted through
// OnConnection.
func (c *Controller) HandleChannelEvent(ev replication.Event) {
	c.post(context.Background(), channelEvent{ev: ev})
}

type commandEvent struct {
	cmd   Command
	reply chan commandResult
}

type commandResult struct {
	state State
	err   error
}

type tickEvent struct {
	gen uint64
	at  time.Time
}

type acceptEvent struct {
	ch replication.Channel
}

type channelEvent struct {
	ev replication.Event
}

type linkEvent struct {
	seq uint64
	ev  replication.Event
}

type registeredEvent struct {
	gen uint64
	reg discovery.Registration
	err error
}

// post hands an event to the controller goroutine. It reports false when
// ctx ended or the controller stopped first.
func (c *Controller) post(ctx context.Context, ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.quit:
		return false
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case commandEvent:
		err := e.cmd.apply(c)
		e.reply <- commandResult{state: c.snapshot(), err: err}
	case tickEvent:
		c.handleTick(e)
	case acceptEvent:
		c.handleAccept(e.ch)
	case channelEvent:
		c.handlePeerEvent(e.ev)
	case linkEvent:
		c.handleLinkEvent(e)
	case registeredEvent:
		c.handleRegistered(e)
	default:
		log.Warn().Type("event", ev).Msg("unknown controller event")
	}
}

func (c *Controller) snapshot() State {
	return State{
		SessionID: c.config.Identity.String(),
		Role:      c.role,
		Status:    c.status,
		Target:    c.target.String(),
		Peers:     c.repl.Count(),
		MaxTimers: models.MaxTimers,
		Timers:    timers.Clone(c.timers),
	}
}

func (c *Controller) handleTick(e tickEvent) {
	// A tick queued before its ticker was stopped belongs to an old role.
	if e.gen != c.tickGen || !c.role.Authoritative() {
		return
	}
	c.timers = timers.TickAll(c.timers)
	c.publish()
}

// publish broadcasts the collection when master and at least one peer exists.
func (c *Controller) publish() {
	if c.role != session.RoleMaster || c.repl.Count() == 0 {
		return
	}
	c.repl.Broadcast(c.timers, c.clock.Now())
}

// commit installs a locally produced collection and shares it.
func (c *Controller) commit(next []models.Timer) {
	c.timers = next
	c.publish()
}
