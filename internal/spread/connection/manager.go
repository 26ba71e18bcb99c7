package connection

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spreadwatch/pkg/wsconn"

	"go.uber.org/zap"
)

// Manager keeps one logical stream connection alive until Stop is called.
//
// All connection state (socket handle, pending reconnect timer) is owned by a
// single goroutine per Start/Stop cycle. Socket callbacks, timer fires and Stop
// requests are serialized through it, and every notification leaves through the
// one Events channel in the order it was produced.
type Manager struct {
	cfg      Config
	factory  wsconn.Factory
	decode   Decoder
	observer Observer
	clock    Clock
	logger   *zap.Logger

	events chan Event
	state  atomic.Int32

	mu      sync.Mutex
	current *cycle
}

// New creates a stopped Manager. factory constructs the underlying sockets.
func New(cfg Config, factory wsconn.Factory, opts ...Option) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.TerminalGrace <= 0 {
		cfg.TerminalGrace = DefaultTerminalGrace
	}
	m := &Manager{
		cfg:      cfg,
		factory:  factory,
		decode:   JSONDecoder,
		observer: nopObserver{},
		clock:    realClock{},
		logger:   zap.NewNop(),
		events:   make(chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the ordered notification stream. It is unbuffered: an event is
// either received before Stop returns or never delivered, and the manager waits
// for the consumer, so the channel must be drained while the manager runs. Every
// Stop of a running manager ends the stream with exactly one Terminal event.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the last known connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start begins keeping a connection to url alive. An empty url derives the
// endpoint from the configured page origin. Calling Start on a running manager
// does nothing.
func (m *Manager) Start(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.current; c != nil {
		if !c.stopping {
			return
		}
		<-c.done
	}

	c := &cycle{
		m:        m,
		override: url,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		inbox:    make(chan socketEvent, 16),
	}
	m.current = c
	go c.run()
}

// Stop disables reconnection and closes the live connection, if any. It returns
// after teardown finished and the Terminal event was handed to the consumer (or
// its grace period ran out); from then on no event is emitted and no timer fires.
// Safe to call repeatedly and on a manager that never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.current
	if c != nil && !c.stopping {
		c.stopping = true
		close(c.stop)
	}
	m.mu.Unlock()

	if c != nil {
		<-c.done
	}
}

type socketEvent struct {
	id uint64
	ev wsconn.Event
}

// cycle holds the state of one Start..Stop run. Only its run goroutine touches
// the fields below stopping.
type cycle struct {
	m        *Manager
	override string
	stop     chan struct{}
	done     chan struct{}
	inbox    chan socketEvent

	stopping bool // guarded by Manager.mu

	sock   wsconn.Socket
	sockID uint64
	nextID uint64
	timer  Timer
}

func (c *cycle) run() {
	defer close(c.done)

	c.connect()
	for {
		// stop wins over anything else already queued
		select {
		case <-c.stop:
			c.teardown()
			return
		default:
		}

		select {
		case <-c.stop:
			c.teardown()
			return
		case se := <-c.inbox:
			c.handle(se)
		case <-c.timerC():
			c.timer = nil
			c.m.logger.Info("reconnect timer fired")
			c.connect()
		}
	}
}

func (c *cycle) timerC() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C()
}

// connect opens a new socket unless one is already open or connecting.
func (c *cycle) connect() {
	if c.sock != nil {
		switch c.sock.State() {
		case wsconn.Open, wsconn.Connecting:
			return
		}
	}

	url := wsconn.ResolveURL(c.override, c.m.cfg.PageOrigin, c.m.logger)
	if !c.setState(Connecting) {
		return
	}

	c.nextID++
	id := c.nextID
	sock, err := c.construct(url, id)
	if err != nil {
		c.m.logger.Error("failed to construct stream connection", zap.String("url", url), zap.Error(err))
		c.m.observer.ConstructionFailed()
		c.sock = nil
		c.scheduleReconnect()
		return
	}
	c.sock, c.sockID = sock, id
	c.m.logger.Debug("stream connection constructed", zap.String("url", url))
}

func (c *cycle) construct(url string, id uint64) (sock wsconn.Socket, err error) {
	defer func() {
		if r := recover(); r != nil {
			sock, err = nil, fmt.Errorf("socket factory panic: %v", r)
		}
	}()
	return c.m.factory(url, c.handlerFor(id))
}

// handlerFor forwards socket events into the run loop, tagged with the socket id
// so events from a replaced or detached socket can be told apart.
func (c *cycle) handlerFor(id uint64) wsconn.Handler {
	return func(ev wsconn.Event) {
		select {
		case c.inbox <- socketEvent{id: id, ev: ev}:
		case <-c.done:
		}
	}
}

func (c *cycle) handle(se socketEvent) {
	if c.sock == nil || se.id != c.sockID {
		return
	}

	switch se.ev.Kind {
	case wsconn.EventOpen:
		c.setState(Open)

	case wsconn.EventMessage:
		c.deliver(se.ev.Data)

	case wsconn.EventError:
		c.m.logger.Warn("stream connection error", zap.Error(se.ev.Err))
		// the close event follows and schedules the reconnect
		if err := c.sock.Close(wsconn.CloseNormalClosure, ""); err != nil {
			c.m.logger.Debug("force close after error failed", zap.Error(err))
		}

	case wsconn.EventClose:
		c.m.logger.Warn("stream connection closed", zap.Int("code", se.ev.Code), zap.Error(se.ev.Err))
		c.sock = nil
		if !c.setState(Closed) {
			return
		}
		c.scheduleReconnect()
	}
}

func (c *cycle) deliver(data []byte) {
	payload, err := c.m.decode(data)
	if err != nil {
		c.m.observer.MessageReceived(true)
		c.m.logger.Debug("passing through undecodable payload", zap.Int("bytes", len(data)), zap.Error(err))
		c.emit(Event{Kind: Message, Payload: data, Malformed: true})
		return
	}
	c.m.observer.MessageReceived(false)
	c.emit(Event{Kind: Message, Payload: payload})
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (c *cycle) scheduleReconnect() {
	if c.timer != nil {
		return
	}
	c.timer = c.m.clock.NewTimer(c.m.cfg.ReconnectDelay)
	c.m.observer.ReconnectScheduled()
	c.m.logger.Info("reconnect scheduled", zap.Duration("delay", c.m.cfg.ReconnectDelay))
}

func (c *cycle) teardown() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if c.sock != nil {
		// detach first so the close below cannot re-enter the reconnect path
		c.sock.Detach()
		switch c.sock.State() {
		case wsconn.Open, wsconn.Connecting:
			if err := c.sock.Close(wsconn.CloseNormalClosure, "client stopped"); err != nil {
				c.m.logger.Debug("close on stop failed", zap.Error(err))
			}
		}
		c.sock = nil
	}

	if State(c.m.state.Swap(int32(Closed))) != Closed {
		c.m.observer.StateChanged(Closed)
	}
	c.m.logger.Info("stream manager stopped")

	// Terminal is the last event of the cycle; a consumer that stopped reading
	// only costs the grace period.
	grace := time.NewTimer(c.m.cfg.TerminalGrace)
	defer grace.Stop()
	select {
	case c.m.events <- Event{Kind: Terminal, State: Closed, Reason: "stopped", At: c.m.clock.Now()}:
	case <-grace.C:
		c.m.logger.Warn("terminal event not consumed", zap.Duration("grace", c.m.cfg.TerminalGrace))
	}
}

// setState records and announces a transition. It returns false when the cycle
// was stopped while waiting for the consumer.
func (c *cycle) setState(s State) bool {
	if State(c.m.state.Swap(int32(s))) == s {
		return true
	}
	c.m.observer.StateChanged(s)
	c.m.logger.Info("stream state changed", zap.Stringer("state", s))
	return c.emit(Event{Kind: StateChange, State: s})
}

func (c *cycle) emit(ev Event) bool {
	ev.At = c.m.clock.Now()

	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.m.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}
