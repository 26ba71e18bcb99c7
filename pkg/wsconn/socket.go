package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const closeWriteTimeout = time.Second

// Conn is a Socket backed by gorilla/websocket. The handshake and the read loop
// run on one background goroutine, which is also the only goroutine delivering events.
type Conn struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	handler   Handler
	cancel    context.CancelFunc
	closeCode int
}

// NewFactory returns a Factory dialing with the given handshake timeout.
func NewFactory(handshakeTimeout time.Duration, logger *zap.Logger) Factory {
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(rawURL string, h Handler) (Socket, error) {
		return Dial(dialer, rawURL, h, logger)
	}
}

// Dial validates the url and starts connecting. It never blocks on the network.
func Dial(dialer *websocket.Dialer, rawURL string, h Handler, logger *zap.Logger) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:     rawURL,
		dialer:  dialer,
		logger:  logger,
		state:   Connecting,
		handler: h,
		cancel:  cancel,
	}
	go c.run(ctx)
	return c, nil
}

// URL returns the dial target.
func (c *Conn) URL() string {
	return c.url
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Detach() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	switch c.state {
	case Closing:
		c.mu.Unlock()
		return nil
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.state
	c.state = Closing
	c.closeCode = code
	conn := c.conn
	c.mu.Unlock()

	if prev == Connecting {
		// the dial goroutine observes Closing and finishes with EventClose
		c.cancel()
		return nil
	}

	// Send close frame, then drop the transport so the read loop unblocks
	werr := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
	cerr := conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return fmt.Errorf("write close frame: %w", werr)
	}
	return cerr
}

func (c *Conn) run(ctx context.Context) {
	defer c.cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)

	c.mu.Lock()
	if err != nil {
		closing := c.state == Closing
		code := c.closeCode
		c.state = Closed
		c.mu.Unlock()

		if closing {
			c.emit(Event{Kind: EventClose, Code: code})
			return
		}
		c.logger.Debug("websocket dial failed", zap.String("url", c.url), zap.Error(err))
		c.emit(Event{Kind: EventError, Err: err})
		c.emit(Event{Kind: EventClose, Code: CloseAbnormalClosure, Err: err})
		return
	}
	if c.state == Closing {
		// Close raced with a successful handshake
		code := c.closeCode
		c.state = Closed
		c.mu.Unlock()
		_ = conn.Close()
		c.emit(Event{Kind: EventClose, Code: code})
		return
	}
	c.conn = conn
	c.state = Open
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", zap.String("url", c.url))
	c.emit(Event{Kind: EventOpen})

	var readErr error
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.emit(Event{Kind: EventMessage, Data: msg})
	}

	c.mu.Lock()
	localClose := c.state == Closing
	code := c.closeCode
	c.state = Closed
	c.mu.Unlock()
	_ = conn.Close()

	var ce *websocket.CloseError
	switch {
	case errors.As(readErr, &ce):
		code = ce.Code
	case localClose:
	default:
		code = CloseAbnormalClosure
		c.logger.Warn("WebSocket read error", zap.String("url", c.url), zap.Error(readErr))
		c.emit(Event{Kind: EventError, Err: readErr})
	}
	c.emit(Event{Kind: EventClose, Code: code, Err: readErr})
}

func (c *Conn) emit(ev Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
