package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWSServer starts an httptest server upgrading every request and handing the conn to handler.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collect() (Handler, <-chan Event) {
	ch := make(chan Event, 32)
	return func(ev Event) { ch <- ev }, ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for socket event")
		return Event{}
	}
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// go test -v --run TestDialInvalidURL
func TestDialInvalidURL(t *testing.T) {
	for _, raw := range []string{"http://localhost:8000/ws", "::bad", "ws://"} {
		h, events := collect()
		_, err := Dial(nil, raw, h, nil)
		require.ErrorIs(t, err, ErrInvalidURL, raw)
		assert.Empty(t, events)
	}
}

// go test -v --run TestConnLifecycle
func TestConnLifecycle(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"z_score":1.5}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
		drain(conn)
	})

	h, events := collect()
	sock, err := Dial(nil, wsURL(server), h, nil)
	require.NoError(t, err)

	assert.Equal(t, EventOpen, next(t, events).Kind)

	msg := next(t, events)
	require.Equal(t, EventMessage, msg.Kind)
	assert.Equal(t, `{"z_score":1.5}`, string(msg.Data))

	msg = next(t, events)
	require.Equal(t, EventMessage, msg.Kind)
	assert.Equal(t, `not json`, string(msg.Data))

	closed := next(t, events)
	require.Equal(t, EventClose, closed.Kind)
	assert.Equal(t, websocket.CloseGoingAway, closed.Code)
	assert.Equal(t, Closed, sock.State())
}

// go test -v --run TestConnDialFailure
func TestConnDialFailure(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {})
	target := wsURL(server)
	server.Close()

	h, events := collect()
	sock, err := Dial(nil, target, h, nil)
	require.NoError(t, err, "construction must not touch the network")

	assert.Equal(t, EventError, next(t, events).Kind)
	closed := next(t, events)
	require.Equal(t, EventClose, closed.Kind)
	assert.Equal(t, CloseAbnormalClosure, closed.Code)
	assert.Equal(t, Closed, sock.State())
}

// go test -v --run TestConnLocalClose
func TestConnLocalClose(t *testing.T) {
	server := mockWSServer(t, drain)

	h, events := collect()
	sock, err := Dial(nil, wsURL(server), h, nil)
	require.NoError(t, err)
	require.Equal(t, EventOpen, next(t, events).Kind)
	assert.Equal(t, Open, sock.State())

	require.NoError(t, sock.Close(CloseNormalClosure, "done"))

	closed := next(t, events)
	require.Equal(t, EventClose, closed.Kind)
	assert.Equal(t, CloseNormalClosure, closed.Code)
	assert.Equal(t, Closed, sock.State())
	assert.ErrorIs(t, sock.Close(CloseNormalClosure, ""), ErrClosed)
}

// go test -v --run TestConnCloseWhileConnecting
func TestConnCloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	h, events := collect()
	sock, err := Dial(nil, wsURL(server), h, nil)
	require.NoError(t, err)
	assert.Equal(t, Connecting, sock.State())

	require.NoError(t, sock.Close(CloseNormalClosure, ""))

	closed := next(t, events)
	require.Equal(t, EventClose, closed.Kind)
	assert.Equal(t, CloseNormalClosure, closed.Code)
}

// go test -v --run TestConnDetach
func TestConnDetach(t *testing.T) {
	closeNow := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-closeNow
	})

	h, events := collect()
	sock, err := Dial(nil, wsURL(server), h, nil)
	require.NoError(t, err)
	require.Equal(t, EventOpen, next(t, events).Kind)

	sock.Detach()
	close(closeNow)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after detach: %v", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}
