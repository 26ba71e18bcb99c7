package wsconn

import (
	"errors"

	"github.com/gorilla/websocket"
)

var (
	// ErrInvalidURL is returned by Dial when the target cannot be used for a websocket.
	ErrInvalidURL = errors.New("wsconn: invalid websocket url")
	// ErrClosed is returned by Close on a socket that already finished closing.
	ErrClosed = errors.New("wsconn: socket closed")
)

// Close codes used by callers.
const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseAbnormalClosure = websocket.CloseAbnormalClosure
)

// State mirrors the ready state of a socket.
type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
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

// EventKind identifies a socket lifecycle event.
type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered to a socket's Handler.
type Event struct {
	Kind EventKind
	Data []byte // message payload (EventMessage)
	Err  error  // failure cause (EventError, optionally EventClose)
	Code int    // close code (EventClose)
}

// Handler receives socket events. Events of one socket are delivered sequentially
// from a single goroutine; an EventClose is always the last one.
type Handler func(Event)

// Socket is a single streaming connection attempt.
type Socket interface {
	// State reports the current ready state.
	State() State
	// Detach drops the handler. No event is delivered after Detach returns
	// unless its delivery had already begun.
	Detach()
	// Close starts the closing handshake with the given code. Closing a socket
	// that is still connecting aborts the dial.
	Close(code int, reason string) error
}

// Factory constructs a socket for url and starts connecting in the background.
// An error means construction itself failed and no event will ever be delivered.
type Factory func(url string, h Handler) (Socket, error)
