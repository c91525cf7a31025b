// Package transport provides the full-duplex connection to one platform
// server: JSON frames over WebSocket, event callbacks, and the
// exponential-backoff reconnect policy.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrelworks/roost/internal/logging"
)

// ErrNotConnected is returned by Emit when no socket is open.
var ErrNotConnected = errors.New("socket not connected")

// Handler receives the raw data payload of a dispatched event.
type Handler func(data json.RawMessage)

// Socket is one connection to a platform server. Callbacks registered with
// On run on the read-loop goroutine; a handler must not block it for long.
type Socket struct {
	url     string
	header  http.Header
	backoff Backoff
	log     *logging.Logger

	// writeMu serializes frame writes separately from state, so a slow
	// network write never blocks Connected or Close.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]Handler
	closed   bool
}

// NewSocket creates a socket for url. The header carries the auth pair and
// is resent on every reconnect dial.
func NewSocket(url string, header http.Header, backoff Backoff, log *logging.Logger) *Socket {
	return &Socket{
		url:      url,
		header:   header,
		backoff:  backoff,
		handlers: make(map[string][]Handler),
		log:      log.Sub("socket"),
	}
}

// On registers a handler for the named event. Multiple handlers per event
// run in registration order.
func (s *Socket) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// Connect dials the server and starts the read loop. The initial dial is
// synchronous so a caller can distinguish a join that registered but never
// connected; later drops reconnect in the background under the backoff
// policy.
func (s *Socket) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	s.fire(EventConnect, nil)
	go s.readLoop(ctx, conn)
	return nil
}

// Connected reports whether a socket is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Emit sends an event frame. Sends on a disconnected socket fail immediately.
func (s *Socket) Emit(event string, payload any) error {
	f, err := NewFrame(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(f)
}

// Close shuts the socket down for good; no reconnect follows.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.conn = nil
			s.mu.Unlock()

			if closed || ctx.Err() != nil {
				s.fire(EventDisconnect, nil)
				return
			}

			s.log.Warn().Err(err).Str("url", s.url).Msg("socket dropped")
			s.fire(EventDisconnect, errPayload(err))

			next, ok := s.reconnect(ctx)
			if !ok {
				return
			}
			conn = next
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Malformed envelope: drop after logging, never propagate.
			s.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		s.fire(f.Event, f.Data)
	}
}

// reconnect runs the backoff schedule. It returns the fresh connection, or
// false once the attempt cap is exhausted or the context ends.
func (s *Socket) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	attempts := s.backoff.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		delay := s.backoff.Delay(attempt)
		s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		if s.isClosed() {
			return nil, false
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			s.fire(EventConnectError, errPayload(err))
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.fire(EventConnect, nil)
		return conn, true
	}

	s.log.Error().Int("attempts", attempts).Str("url", s.url).Msg("reconnect attempts exhausted")
	s.fire(EventConnectError, errPayload(errors.New("reconnect attempts exhausted")))
	return nil, false
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) fire(event string, data json.RawMessage) {
	s.mu.Lock()
	hs := make([]Handler, len(s.handlers[event]))
	copy(hs, s.handlers[event])
	s.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

func errPayload(err error) json.RawMessage {
	raw, _ := json.Marshal(err.Error())
	return raw
}
