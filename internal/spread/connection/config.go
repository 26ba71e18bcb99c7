package connection

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	// DefaultTerminalGrace bounds how long Stop waits for the consumer to take
	// the Terminal event.
	DefaultTerminalGrace = time.Second
)

// Config controls endpoint resolution and reconnect cadence.
type Config struct {
	// PageOrigin is the origin the dashboard is served from. Used to derive the
	// stream endpoint when Start is called without an override.
	PageOrigin string
	// ReconnectDelay is the fixed wait before a reconnect attempt.
	ReconnectDelay time.Duration
	// TerminalGrace is how long teardown waits to hand over the Terminal event.
	TerminalGrace time.Duration
}

func DefaultConfig() Config {
	return Config{ReconnectDelay: DefaultReconnectDelay, TerminalGrace: DefaultTerminalGrace}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDecoder sets the structural decoder applied to every message.
func WithDecoder(d Decoder) Option {
	return func(m *Manager) {
		if d != nil {
			m.decode = d
		}
	}
}

// WithObserver attaches lifecycle counters.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
