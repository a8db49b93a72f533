package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trading-console/src/events"
	"trading-console/src/helpers"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"
	"trading-console/src/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// SourceFactory builds the source for one connection attempt
type SourceFactory func(demo bool) interfaces.IStreamSource

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client owns at most one active source and fans its envelopes out to
// observers and to the invalidation bridge.
//
// Every Connect, Disconnect and transport failure starts a new generation.
// Sources and reconnect timers carry the generation they were created in,
// and anything arriving from an older generation is dropped.
type Client struct {
	Config *models.MConfig
	Logger *logger.Logger

	supervisor     *Supervisor
	registry       *Registry
	bridge         *Bridge
	newSource      SourceFactory
	demo           bool
	reconnectDelay time.Duration

	// mu guards the active source and the reconnect timer
	mu             sync.Mutex
	source         interfaces.IStreamSource
	cancelSource   context.CancelFunc
	reconnectTimer *time.Timer
	reconnects     uint64
	lastErr        error

	gen atomic.Uint64

	// dispatchMu serialises dispatch passes
	dispatchMu sync.Mutex
}

// Status is a point-in-time view of the client
type Status struct {
	State               State  `json:"state"`
	Demo                bool   `json:"demo"`
	Source              string `json:"source,omitempty"`
	ReconnectPending    bool   `json:"reconnect_pending"`
	ReconnectsScheduled uint64 `json:"reconnects_scheduled"`
	LastError           string `json:"last_error,omitempty"`
}

// -----------------------------------------------------------------------------

// NewClient creates a disconnected client. The demo flag is read from cfg once, here.
func NewClient(cfg *models.MConfig, log *logger.Logger, bridge *Bridge, factory SourceFactory) *Client {
	delay := time.Duration(cfg.Stream.ReconnectDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Client{
		Config:         cfg,
		Logger:         log,
		supervisor:     NewSupervisor(log),
		registry:       NewRegistry(),
		bridge:         bridge,
		newSource:      factory,
		demo:           cfg.Stream.DemoMode,
		reconnectDelay: delay,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect replaces whatever source is active with a fresh one and cancels a
// pending reconnect. The state is reconnecting until the source reports ready;
// a synthetic source is ready before Connect returns.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectLocked()
}

// -----------------------------------------------------------------------------

// Disconnect stops the active source and any pending reconnect. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil && c.reconnectTimer == nil && c.supervisor.State() == StateDisconnected {
		return
	}
	c.teardownLocked()
	c.Logger.Info("Stream disconnected")
}

// -----------------------------------------------------------------------------

func (c *Client) connectLocked() {
	c.teardownLocked()

	gen := c.gen.Add(1)
	if _, err := c.supervisor.TransitionAt(gen, StateReconnecting); err != nil {
		c.Logger.Error("%v", err)
	}

	src := c.newSource(c.demo)
	ctx, cancel := context.WithCancel(context.Background())
	c.source = src
	c.cancelSource = cancel

	c.Logger.Info("Connecting via %s source", src.Name())
	if err := src.Start(ctx, &sourceSink{client: c, gen: gen}); err != nil {
		c.failLocked(gen, err)
	}
}

// -----------------------------------------------------------------------------

// teardownLocked ends the current generation: the reconnect timer is stopped,
// the source is cancelled and the state drops to disconnected.
func (c *Client) teardownLocked() {
	gen := c.gen.Add(1)

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	if c.source != nil {
		c.cancelSource()
		if err := c.source.Stop(); err != nil {
			c.Logger.Debug("Stopping %s source: %v", c.source.Name(), err)
		}
		c.source = nil
		c.cancelSource = nil
	}

	if _, err := c.supervisor.TransitionAt(gen, StateDisconnected); err != nil {
		c.Logger.Error("%v", err)
	}
}

// -----------------------------------------------------------------------------

// failLocked handles a transport failure of generation gen: tear down and arm
// exactly one reconnect.
func (c *Client) failLocked(gen uint64, err error) {
	if c.gen.Load() != gen || c.source == nil {
		return
	}

	c.lastErr = err
	c.Logger.Warning("Stream source %s failed: %v. Reconnecting in %v", c.source.Name(), err, c.reconnectDelay)
	c.teardownLocked()

	timerGen := c.gen.Load()
	c.reconnects++
	metrics.ReconnectsScheduled.Inc()
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.reconnect(timerGen)
	})
}

// -----------------------------------------------------------------------------

func (c *Client) reconnect(timerGen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Connect or Disconnect ran after the timer was armed
	if c.gen.Load() != timerGen || c.reconnectTimer == nil {
		return
	}
	c.reconnectTimer = nil
	c.connectLocked()
}

// -----------------------------------------------------------------------------
// Source callbacks
// -----------------------------------------------------------------------------

// handleReady does not take c.mu: a synthetic source reports ready from
// inside Start. The generation check happens in the supervisor instead.
func (c *Client) handleReady(gen uint64) {
	if _, err := c.supervisor.TransitionAt(gen, StateConnected); err != nil {
		c.Logger.Debug("Ignoring late ready signal: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (c *Client) handleFailure(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(gen, err)
}

// -----------------------------------------------------------------------------

func (c *Client) handleEvent(gen uint64, env events.Envelope) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	if c.gen.Load() != gen {
		return
	}
	c.dispatch(env)
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// dispatch runs every observer registered for env.Kind, then the bridge.
// Callers hold dispatchMu.
func (c *Client) dispatch(env events.Envelope) {
	if !env.Kind.Valid() {
		c.Logger.Warning("Dropping envelope of unknown kind %q", env.Kind)
		return
	}

	kind := string(env.Kind)
	start := time.Now()
	_, span := tracing.StartSpan(context.Background(), "stream.dispatch", attribute.String("event.kind", kind))
	defer span.End()

	for _, reg := range c.registry.snapshot(env.Kind) {
		fn := reg.fn
		if err := helpers.SafeCall(func() { fn(env) }); err != nil {
			metrics.ObserverPanics.WithLabelValues(kind).Inc()
			c.Logger.Error("Observer for %s failed: %v", kind, err)
		}
	}

	if c.bridge != nil {
		c.bridge.Apply(env)
	}

	metrics.EventsDispatched.WithLabelValues(kind).Inc()
	metrics.DispatchDuration.WithLabelValues(kind).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// -----------------------------------------------------------------------------
// Subscriptions & state
// -----------------------------------------------------------------------------

// Subscribe registers fn for one kind and returns its unsubscribe func
func (c *Client) Subscribe(kind events.Kind, fn Observer) func() {
	return c.registry.Subscribe(kind, fn)
}

// -----------------------------------------------------------------------------

// SubscribeAll registers fn for every kind
func (c *Client) SubscribeAll(fn Observer) func() {
	kinds := events.Kinds()
	unsubs := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		unsubs = append(unsubs, c.registry.Subscribe(k, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// -----------------------------------------------------------------------------

// State returns the current connection state
func (c *Client) State() State {
	return c.supervisor.State()
}

// -----------------------------------------------------------------------------

// Supervisor exposes the state machine for watchers
func (c *Client) Supervisor() *Supervisor {
	return c.supervisor
}

// -----------------------------------------------------------------------------

// Status returns a snapshot for health endpoints
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:               c.supervisor.State(),
		Demo:                c.demo,
		ReconnectPending:    c.reconnectTimer != nil,
		ReconnectsScheduled: c.reconnects,
	}
	if c.source != nil {
		st.Source = c.source.Name()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// -----------------------------------------------------------------------------
// sourceSink binds a source to the generation it was started in
// -----------------------------------------------------------------------------

type sourceSink struct {
	client *Client
	gen    uint64
}

func (s *sourceSink) Ready() {
	s.client.handleReady(s.gen)
}

func (s *sourceSink) Emit(env events.Envelope) {
	s.client.handleEvent(s.gen, env)
}

func (s *sourceSink) Fail(err error) {
	s.client.handleFailure(s.gen, err)
}
