package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/roost/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// wsTestServer upgrades connections and hands them to accept.
func wsTestServer(t *testing.T, accept func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accept(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocket_ConnectAndReceive(t *testing.T) {
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(Frame{Event: EventMessage, Data: json.RawMessage(`{"text":"hi"}`)})
	})

	sock := NewSocket(wsURL(srv), nil, DefaultBackoff, testLogger())

	connected := make(chan struct{}, 1)
	sock.On(EventConnect, func(json.RawMessage) { connected <- struct{}{} })

	got := make(chan json.RawMessage, 1)
	sock.On(EventMessage, func(data json.RawMessage) { got <- data })

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connect event never fired")
	}

	select {
	case data := <-got:
		assert.JSONEq(t, `{"text":"hi"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("message event never fired")
	}
}

func TestSocket_Emit(t *testing.T) {
	frames := make(chan Frame, 1)
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		var f Frame
		if err := conn.ReadJSON(&f); err == nil {
			frames <- f
		}
	})

	sock := NewSocket(wsURL(srv), nil, DefaultBackoff, testLogger())
	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	require.NoError(t, sock.Emit(EventMessage, map[string]string{"text": "out"}))

	select {
	case f := <-frames:
		assert.Equal(t, EventMessage, f.Event)
		assert.JSONEq(t, `{"text":"out"}`, string(f.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestSocket_EmitNotConnected(t *testing.T) {
	sock := NewSocket("ws://example.invalid", nil, DefaultBackoff, testLogger())
	err := sock.Emit(EventMessage, "x")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSocket_ConnectFailure(t *testing.T) {
	sock := NewSocket("ws://127.0.0.1:1", nil, DefaultBackoff, testLogger())
	err := sock.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, sock.Connected())
}

func TestSocket_MalformedFrameDropped(t *testing.T) {
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(Frame{Event: EventMessage, Data: json.RawMessage(`"later"`)})
	})

	sock := NewSocket(wsURL(srv), nil, DefaultBackoff, testLogger())
	got := make(chan json.RawMessage, 1)
	sock.On(EventMessage, func(data json.RawMessage) { got <- data })

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	// The malformed frame is skipped; the next valid one still arrives.
	select {
	case data := <-got:
		assert.Equal(t, `"later"`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame after malformed one never arrived")
	}
}

func TestSocket_ReconnectAfterDrop(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			conn.Close() // force a drop to trigger the reconnect path
			return
		}
		conn.WriteJSON(Frame{Event: EventMessage, Data: json.RawMessage(`"back"`)})
	})

	sock := NewSocket(wsURL(srv), nil, Backoff{Base: 10 * time.Millisecond, MaxAttempts: 5}, testLogger())

	disconnected := make(chan struct{}, 1)
	sock.On(EventDisconnect, func(json.RawMessage) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})
	got := make(chan json.RawMessage, 1)
	sock.On(EventMessage, func(data json.RawMessage) { got <- data })

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect event never fired")
	}

	select {
	case data := <-got:
		assert.Equal(t, `"back"`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("socket never recovered after drop")
	}
}

func TestSocket_ReconnectExhaustion(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	srv := wsTestServer(t, func(conn *websocket.Conn) { accepted <- conn })

	sock := NewSocket(wsURL(srv), nil, Backoff{Base: 10 * time.Millisecond, MaxAttempts: 3}, testLogger())

	connErrs := make(chan json.RawMessage, 8)
	sock.On(EventConnectError, func(data json.RawMessage) { connErrs <- data })

	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	// Take the server down for good, then drop the live connection so the
	// backoff schedule runs against a dead endpoint.
	conn := <-accepted
	srv.Close()
	conn.Close()

	// One connect_error per failed attempt, then the exhaustion report.
	var last string
	for i := 0; i < 4; i++ {
		select {
		case data := <-connErrs:
			require.NoError(t, json.Unmarshal(data, &last))
		case <-time.After(2 * time.Second):
			t.Fatalf("connect_error stream ended after %d event(s)", i)
		}
	}
	assert.Contains(t, last, "exhausted")

	// Exhaustion leaves the socket disconnected; no retry keeps running.
	assert.False(t, sock.Connected())
	assert.ErrorIs(t, sock.Emit(EventMessage, "x"), ErrNotConnected)
}

func TestSocket_ConcurrentEmit(t *testing.T) {
	const senders = 8

	frames := make(chan Frame, senders)
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
		}
	})

	sock := NewSocket(wsURL(srv), nil, DefaultBackoff, testLogger())
	require.NoError(t, sock.Connect(context.Background()))
	defer sock.Close()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, sock.Emit(EventMessage, map[string]int{"n": n}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < senders; i++ {
		select {
		case f := <-frames:
			assert.Equal(t, EventMessage, f.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d frames arrived", i, senders)
		}
	}
}

func TestSocket_CloseStopsReconnect(t *testing.T) {
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		// Keep the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sock := NewSocket(wsURL(srv), nil, Backoff{Base: 10 * time.Millisecond, MaxAttempts: 3}, testLogger())
	require.NoError(t, sock.Connect(context.Background()))

	require.NoError(t, sock.Close())
	assert.False(t, sock.Connected())

	// Closing twice is harmless.
	assert.NoError(t, sock.Close())
}

func TestBackoff_Schedule(t *testing.T) {
	b := Backoff{Base: time.Second, MaxAttempts: 5}
	assert.Equal(t, 1*time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 16*time.Second, b.Delay(5))
	assert.Equal(t, 5, b.Attempts())
}

func TestBackoff_Defaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 5, b.Attempts())
}
