package connection

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of the managed connection.
type State int32

const (
	Unstarted State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind identifies what an Event carries.
type EventKind int

const (
	StateChange EventKind = iota + 1
	Message
	Terminal
)

func (k EventKind) String() string {
	switch k {
	case StateChange:
		return "state_change"
	case Message:
		return "message"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Event is one notification on the manager's ordered event stream.
type Event struct {
	Kind  EventKind
	State State // StateChange

	// Payload is the decoder's result for a Message, or the raw []byte when
	// the payload failed to decode (Malformed is then true).
	Payload   any
	Malformed bool

	Reason string // Terminal
	At     time.Time
}

// Decoder turns a raw stream payload into a structured value.
type Decoder func(data []byte) (any, error)

// JSONDecoder decodes any well-formed JSON document.
func JSONDecoder(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Observer receives lifecycle counters. Calls happen on the manager goroutine.
type Observer interface {
	StateChanged(State)
	ConstructionFailed()
	ReconnectScheduled()
	MessageReceived(malformed bool)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)   {}
func (nopObserver) ConstructionFailed()  {}
func (nopObserver) ReconnectScheduled()  {}
func (nopObserver) MessageReceived(bool) {}

// Timer is the subset of *time.Timer the manager needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates reconnect timers.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{t: time.NewTimer(d)} }

func (r realTimer) C() <-chan time.Time { return r.t.C }

func (r realTimer) Stop() bool { return r.t.Stop() }
