package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/metrics"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/retry"
)

// Handler receives events routed to a subscribed resource.
type Handler func(Event)

// StateListener observes connection state transitions.
type StateListener func(State)

// Options configures a Manager.
type Options struct {
	Dialer Dialer
	Clock  Clock

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Backoff supplies the reconnect delay schedule (BaseDelay*2^n capped at
	// MaxDelay). Its Attempts field is ignored.
	Backoff              retry.Policy
	MaxReconnectAttempts int

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

const (
	defaultHeartbeatInterval    = 30 * time.Second
	defaultHeartbeatTimeout     = 45 * time.Second
	defaultInitialReconnect     = time.Second
	defaultMaxReconnectDelay    = 30 * time.Second
	defaultMaxReconnectAttempts = 10
)

var errHeartbeatTimeout = errors.New("no frames within heartbeat timeout")

// OptionsFromConfig maps the [stream] section onto Options.
func OptionsFromConfig(cfg *config.Config, dialer Dialer, logger *slog.Logger, reg *metrics.Registry) Options {
	return Options{
		Dialer:            dialer,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		HeartbeatTimeout:  cfg.HeartbeatTimeout(),
		Backoff: retry.Policy{
			BaseDelay: cfg.InitialReconnectDelay(),
			MaxDelay:  cfg.MaxReconnectDelay(),
		},
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		Logger:               logger,
		Metrics:              reg,
	}
}

type subscription struct {
	resource ResourceID
	handler  Handler
	active   atomic.Bool
}

// Manager owns the single physical event connection.
type Manager struct {
	dialer      Dialer
	clock       Clock
	hbInterval  time.Duration
	hbTimeout   time.Duration
	backoff     retry.Policy
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	subs           map[ResourceID][]*subscription
	listeners      map[uint64]StateListener
	nextListener   uint64
	state          State
	conn           Conn
	connResources  []ResourceID
	connCancel     context.CancelFunc
	gen            uint64
	dialing        bool
	redial         bool
	attempts       int
	reconnectTimer Timer
	heartbeatTimer Timer
	lastSeen       time.Time
	destroyed      bool

	pending   []State
	notifying bool
}

// NewManager constructs a disconnected manager. Nothing is dialed until the
// first Subscribe.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, errors.New("stream manager: dialer required")
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff.BaseDelay = defaultInitialReconnect
	}
	if opts.Backoff.MaxDelay <= 0 {
		opts.Backoff.MaxDelay = defaultMaxReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer:      opts.Dialer,
		clock:       opts.Clock,
		hbInterval:  opts.HeartbeatInterval,
		hbTimeout:   opts.HeartbeatTimeout,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxReconnectAttempts,
		logger:      logging.NewComponentLogger(opts.Logger, "stream"),
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[ResourceID][]*subscription),
		listeners:   make(map[uint64]StateListener),
		state:       StateDisconnected,
	}
	m.metrics.SetStreamState(string(StateDisconnected), stateNames())
	return m, nil
}

// Subscribe registers handler for id and returns its unsubscribe function.
// A new identifier re-establishes the connection so the server includes it.
func (m *Manager) Subscribe(id ResourceID, handler Handler) func() {
	if handler == nil || id == "" {
		return func() {}
	}
	sub := &subscription{resource: id, handler: handler}
	sub.active.Store(true)

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return func() {}
	}
	m.subs[id] = append(m.subs[id], sub)
	m.metrics.SetResources(len(m.subs))
	m.logger.Debug("resource subscribed",
		logging.Resource(string(id)),
		logging.Int("subscribers", len(m.subs[id])),
	)
	m.resyncLocked()
	m.mu.Unlock()
	m.flush()

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(sub) })
	}
}

func (m *Manager) unsubscribe(sub *subscription) {
	sub.active.Store(false)

	m.mu.Lock()
	list := m.subs[sub.resource]
	if idx := slices.Index(list, sub); idx >= 0 {
		list = slices.Delete(list, idx, idx+1)
	}
	if len(list) == 0 {
		delete(m.subs, sub.resource)
		m.logger.Debug("resource released", logging.Resource(string(sub.resource)))
	} else {
		m.subs[sub.resource] = list
	}
	m.metrics.SetResources(len(m.subs))
	if len(m.subs) == 0 && !m.destroyed {
		m.teardownLocked()
		m.attempts = 0
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()
	m.flush()
}

// AddStateListener registers fn for every state transition and returns a
// function that removes it.
func (m *Manager) AddStateListener(fn StateListener) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return func() {}
	}
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveResources returns the subscribed identifiers, sorted.
func (m *Manager) ActiveResources() []ResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resourcesLocked()
}

// ConnectedResources returns the identifier list of the open connection, or
// nil when none is open.
func (m *Manager) ConnectedResources() []ResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.connResources)
}

// Reconnect drops the current connection and dials again with a fresh attempt
// budget.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.attempts = 0
	if len(m.subs) == 0 {
		m.setStateLocked(StateDisconnected)
	} else {
		m.startDialLocked()
	}
	m.mu.Unlock()
	m.flush()
}

// Disconnect closes the connection and cancels pending reconnects.
// Subscriptions are kept; the next Subscribe or Reconnect dials again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.attempts = 0
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.flush()
}

// Destroy closes the connection and clears all subscriptions and listeners.
// The manager is unusable afterwards.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.teardownLocked()
	for _, list := range m.subs {
		for _, sub := range list {
			sub.active.Store(false)
		}
	}
	clear(m.subs)
	m.metrics.SetResources(0)
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
	m.flush()

	m.mu.Lock()
	clear(m.listeners)
	m.mu.Unlock()
	m.cancel()
	m.logger.Debug("stream manager destroyed")
}

// resyncLocked makes sure a connection covering the current resource set is
// open or on its way.
func (m *Manager) resyncLocked() {
	if m.destroyed || len(m.subs) == 0 {
		return
	}
	if m.dialing {
		m.redial = true
		return
	}
	if m.reconnectTimer != nil {
		return
	}
	if m.conn != nil {
		if slices.Equal(m.connResources, m.resourcesLocked()) {
			return
		}
		m.logger.Debug("resource set changed, reconnecting",
			logging.String("resources", JoinResources(m.resourcesLocked())),
		)
		m.teardownLocked()
	}
	m.attempts = 0
	m.startDialLocked()
}

func (m *Manager) startDialLocked() {
	m.gen++
	gen := m.gen
	resources := m.resourcesLocked()
	if m.connCancel != nil {
		m.connCancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.connCancel = cancel
	m.dialing = true
	m.redial = false
	m.setStateLocked(StateConnecting)
	go m.dial(ctx, gen, resources)
}

func (m *Manager) dial(ctx context.Context, gen uint64, resources []ResourceID) {
	conn, err := m.dialer.Dial(ctx, resources)

	m.mu.Lock()
	if gen != m.gen || m.destroyed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.dialing = false
	switch {
	case err != nil:
		m.failLocked(fmt.Errorf("dial: %w", err))
	case m.redial:
		_ = conn.Close()
		m.startDialLocked()
	default:
		m.conn = conn
		m.connResources = resources
		m.attempts = 0
		m.lastSeen = m.clock.Now()
		m.setStateLocked(StateConnected)
		m.logger.Info("event stream connected",
			logging.String(logging.FieldEventType, "stream_connected"),
			logging.String("resources", JoinResources(resources)),
		)
		m.scheduleHeartbeatLocked(gen)
		go m.readLoop(gen, conn)
	}
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("server closed the stream")
			}
			m.connectionLost(gen, err)
			return
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.lastSeen = m.clock.Now()
		m.mu.Unlock()

		if frame.IsComment() {
			continue
		}
		ev, err := Decode(frame)
		if err != nil {
			m.logger.Warn("dropping undecodable frame",
				logging.String("event", frame.Event),
				logging.Error(err),
				logging.String(logging.FieldEventType, "stream_decode_failed"),
				logging.String(logging.FieldImpact, "event ignored"),
			)
			continue
		}
		m.metrics.ObserveEvent(ev.Name())
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev Event) {
	if connected, ok := ev.(Connected); ok {
		m.logger.Debug("server confirmed subscription",
			logging.Int("resources", len(connected.Resources)),
		)
		return
	}
	m.mu.Lock()
	subs := slices.Clone(m.subs[ev.Resource()])
	m.mu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		m.invoke(sub, ev)
	}
}

func (m *Manager) invoke(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(m.logger, "event handler panicked",
				"stream_handler_panic", "other handlers still receive the event",
				logging.Resource(string(sub.resource)),
				logging.String("event", ev.Name()),
				logging.Any("panic", r),
			)
		}
	}()
	sub.handler(ev)
}

func (m *Manager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.failLocked(err)
	m.mu.Unlock()
	m.flush()
}

// failLocked moves through ERROR to RECONNECTING and schedules the next dial,
// or stays in ERROR once the attempt budget is spent.
func (m *Manager) failLocked(err error) {
	m.teardownLocked()
	if len(m.subs) == 0 {
		m.setStateLocked(StateDisconnected)
		return
	}
	m.setStateLocked(StateError)
	if m.attempts >= m.maxAttempts {
		logging.WarnWithContext(m.logger, "event stream gave up reconnecting",
			"stream_exhausted", "live updates stopped until the next subscribe or reconnect",
			logging.Int("attempts", m.attempts),
			logging.Error(err),
		)
		return
	}
	delay := m.backoff.Step(m.attempts)
	m.attempts++
	m.setStateLocked(StateReconnecting)
	m.metrics.ObserveReconnect()
	m.logger.Warn("event stream interrupted",
		logging.Error(err),
		logging.Int("attempt", m.attempts),
		logging.Duration("delay", delay),
		logging.String(logging.FieldEventType, "stream_reconnect_scheduled"),
		logging.String(logging.FieldImpact, "live updates paused"),
	)
	gen := m.gen
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnectDue(gen) })
}

func (m *Manager) reconnectDue(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	if len(m.subs) == 0 {
		m.setStateLocked(StateDisconnected)
	} else {
		m.startDialLocked()
	}
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	m.heartbeatTimer = m.clock.AfterFunc(m.hbInterval, func() { m.heartbeatDue(gen) })
}

func (m *Manager) heartbeatDue(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.conn == nil || m.destroyed {
		m.mu.Unlock()
		return
	}
	if idle := m.clock.Now().Sub(m.lastSeen); idle > m.hbTimeout {
		m.logger.Warn("event stream stale",
			logging.Duration("idle", idle),
			logging.String(logging.FieldEventType, "stream_stale"),
			logging.String(logging.FieldImpact, "forcing reconnect"),
		)
		m.failLocked(errHeartbeatTimeout)
	} else {
		m.scheduleHeartbeatLocked(gen)
	}
	m.mu.Unlock()
	m.flush()
}

// teardownLocked closes the connection, cancels any dial, and stops timers.
// Bumping gen makes every callback from the old connection a no-op.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connResources = nil
	m.dialing = false
	m.redial = false
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) resourcesLocked() []ResourceID {
	out := make([]ResourceID, 0, len(m.subs))
	for id := range m.subs {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("stream state changed",
		logging.String("from", string(m.state)),
		logging.String("to", string(s)),
	)
	m.state = s
	m.pending = append(m.pending, s)
	m.metrics.SetStreamState(string(s), stateNames())
}

// flush delivers queued state transitions outside the lock, in order. Calls
// made while a flush is running (for example from a listener) enqueue and let
// the running flush deliver them.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.notifying {
		m.mu.Unlock()
		return
	}
	m.notifying = true
	for len(m.pending) > 0 {
		s := m.pending[0]
		m.pending = m.pending[1:]
		listeners := make([]StateListener, 0, len(m.listeners))
		for _, id := range slices.Sorted(maps.Keys(m.listeners)) {
			listeners = append(listeners, m.listeners[id])
		}
		m.mu.Unlock()
		for _, fn := range listeners {
			m.notify(fn, s)
		}
		m.mu.Lock()
	}
	m.notifying = false
	m.mu.Unlock()
}

func (m *Manager) notify(fn StateListener, s State) {
	defer func() {
		if r := recover(); r != nil {
			logging.WarnWithContext(m.logger, "state listener panicked",
				"stream_listener_panic", "other listeners still notified",
				logging.String("state", string(s)),
				logging.Any("panic", r),
			)
		}
	}()
	fn(s)
}
