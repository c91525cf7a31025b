// Package bot owns the live platform session: one socket per joined server,
// inbound dispatch to hooks and command handlers, and rate-limited sends.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelworks/roost/internal/command"
	"github.com/kestrelworks/roost/internal/config"
	"github.com/kestrelworks/roost/internal/logging"
	"github.com/kestrelworks/roost/internal/markup"
	"github.com/kestrelworks/roost/internal/rest"
	"github.com/kestrelworks/roost/internal/transport"
)

// connection is one live socket plus its send limiter, keyed by server id.
type connection struct {
	serverID string
	sock     *transport.Socket
	limiter  *rate.Limiter
}

// Session runs one bot: it discovers joined servers, keeps a connection per
// server, and dispatches inbound messages. Create with New, start with Run.
type Session struct {
	log        *logging.Logger
	rest       *rest.Client
	cache      *rest.Cache
	hooks      Hooks
	commands   *command.Registry
	prefix     string
	echoErrors bool
	sendEvery  time.Duration
	backoff    transport.Backoff
	socketURL  string
	token      string
	botID      string

	runCtx context.Context

	mu      sync.RWMutex
	self    Identity
	joined  map[string]Server
	conns   map[string]*connection
	started time.Time
}

// Option configures a Session at construction.
type Option func(*Session)

// WithCommands attaches the command registry consulted for prefixed
// messages. Each session owns its registry; nothing is process-global.
func WithCommands(reg *command.Registry) Option {
	return func(s *Session) { s.commands = reg }
}

// WithHooks sets the operator callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// New builds a Session from config. The config should have passed through
// config.Normalize; New still guards the tunables it depends on.
func New(cfg config.Config, log *logging.Logger, opts ...Option) *Session {
	log = log.Sub("bot")

	sendEvery := time.Duration(cfg.Bot.SendIntervalMs) * time.Millisecond
	if sendEvery <= 0 {
		sendEvery = time.Duration(config.DefaultSendIntervalMs) * time.Millisecond
	}

	client := rest.NewClient(cfg.API.BaseURL, cfg.Credentials.Token, cfg.Credentials.BotID, log)

	s := &Session{
		log:        log,
		rest:       client,
		cache:      rest.NewCache(client, time.Duration(cfg.Cache.TTLMinutes)*time.Minute, log),
		prefix:     cfg.Bot.Prefix,
		echoErrors: cfg.Bot.EchoErrors,
		sendEvery:  sendEvery,
		backoff: transport.Backoff{
			Base:        time.Duration(cfg.Reconnect.BaseDelayMs) * time.Millisecond,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		socketURL: cfg.API.SocketURL,
		token:     cfg.Credentials.Token,
		botID:     cfg.Credentials.BotID,
		runCtx:    context.Background(),
		joined:    make(map[string]Server),
		conns:     make(map[string]*connection),
	}
	if s.prefix == "" {
		s.prefix = config.DefaultPrefix
	}

	for _, opt := range opts {
		opt(s)
	}
	s.hooks = s.hooks.withDefaults(log)
	return s
}

// Run performs the identity lookup, opens one connection per joined server
// and signals readiness. Only an identity lookup failure aborts startup;
// individual connection failures are reported and leave that server joined
// but disconnected.
func (s *Session) Run(ctx context.Context) error {
	s.runCtx = ctx

	var ident Identity
	if err := s.rest.GetJSON(ctx, s.rest.URL("/bot/info"), &ident); err != nil {
		return fmt.Errorf("identity lookup: %w", err)
	}

	s.mu.Lock()
	s.self = ident
	s.started = time.Now()
	for _, srv := range ident.Servers {
		s.joined[srv.ID] = srv
	}
	s.mu.Unlock()

	// Connections are initiated concurrently; readiness below does not wait
	// for confirmation. Each server logs its own connect independently.
	for _, srv := range ident.Servers {
		go func(id string) {
			if err := s.openConnection(ctx, id); err != nil {
				s.log.Error().Err(err).Str("server", id).Msg("initial connection failed")
				s.hooks.OnError(err, "connect")
			}
		}(srv.ID)
	}

	s.log.Info().
		Str("bot", ident.Name).
		Int("servers", len(ident.Servers)).
		Msg("session ready")
	s.hooks.OnStart()
	return nil
}

// Send formats text and emits it to serverID. Sends to unconnected servers,
// blank payloads, and sends inside the per-server rate window are rejected;
// a rate-limited message is dropped, never queued.
func (s *Session) Send(text, serverID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.RLock()
	conn := s.conns[serverID]
	s.mu.RUnlock()
	if conn == nil || !conn.sock.Connected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, serverID)
	}

	// The window is measured from the last successful send, so the token is
	// returned if the write fails.
	r := conn.limiter.Reserve()
	if !r.OK() || r.Delay() > 0 {
		if r.OK() {
			r.Cancel()
		}
		s.log.Warn().Str("server", serverID).Msg("send rate limited, dropping message")
		return fmt.Errorf("%w: server %s", ErrRateLimited, serverID)
	}

	out := outbound{Text: markup.Format(text), ServerID: serverID}
	if err := conn.sock.Emit(transport.EventMessage, out); err != nil {
		r.Cancel()
		return fmt.Errorf("sending to server %s: %w", serverID, err)
	}
	return nil
}

// Broadcast sends text to every connected server, reporting per-server
// failures.
func (s *Session) Broadcast(text string) map[string]error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	errs := make(map[string]error)
	for _, id := range ids {
		if err := s.Send(text, id); err != nil {
			errs[id] = err
		}
	}
	return errs
}

// Join registers membership in a new server and opens its connection. The
// two steps are not atomic: when the membership call succeeds but the
// connection fails, the server stays joined and the returned *JoinError
// says to retry with Reconnect.
func (s *Session) Join(ctx context.Context, serverID string) error {
	s.mu.RLock()
	_, exists := s.joined[serverID]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, serverID)
	}

	if err := s.rest.PostForm(ctx, s.rest.URL("/bot/join"), url.Values{"server": {serverID}}); err != nil {
		return fmt.Errorf("joining server %s: %w", serverID, err)
	}

	s.mu.Lock()
	s.joined[serverID] = Server{ID: serverID}
	s.mu.Unlock()
	s.log.Info().Str("server", serverID).Msg("joined server")

	if err := s.openConnection(ctx, serverID); err != nil {
		return &JoinError{ServerID: serverID, Err: err}
	}
	return nil
}

// Reconnect retries only the connection step for a server that is joined
// but has no live connection.
func (s *Session) Reconnect(ctx context.Context, serverID string) error {
	s.mu.RLock()
	_, joined := s.joined[serverID]
	conn := s.conns[serverID]
	s.mu.RUnlock()

	if !joined {
		return fmt.Errorf("%w: %s", ErrNotJoined, serverID)
	}
	if conn != nil && conn.sock.Connected() {
		return nil
	}
	return s.openConnection(ctx, serverID)
}

// Leave closes the connection to serverID and forgets it.
func (s *Session) Leave(serverID string) error {
	s.mu.Lock()
	conn := s.conns[serverID]
	delete(s.conns, serverID)
	delete(s.joined, serverID)
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: %s", ErrNotJoined, serverID)
	}
	s.log.Info().Str("server", serverID).Msg("leaving server")
	return conn.sock.Close()
}

// SetSetting posts a platform setting change for the bot account.
func (s *Session) SetSetting(ctx context.Context, key, value string) error {
	form := url.Values{"key": {key}, "value": {value}}
	if err := s.rest.PostForm(ctx, s.rest.URL("/bot/setting"), form); err != nil {
		return fmt.Errorf("changing setting %q: %w", key, err)
	}
	return nil
}

// Close shuts down every connection. The session can not be restarted.
func (s *Session) Close() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*connection)
	s.mu.Unlock()

	for id, conn := range conns {
		if err := conn.sock.Close(); err != nil {
			s.log.Warn().Err(err).Str("server", id).Msg("closing connection")
		}
	}
	s.log.Info().Msg("session closed")
	return nil
}

// ServerStatus is one row of the Status snapshot.
type ServerStatus struct {
	ID        string
	Name      string
	Connected bool
}

// Status reports every joined server and whether its connection is live.
// A joined-but-disconnected row marks a candidate for Reconnect.
func (s *Session) Status() []ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(s.joined))
	for id, srv := range s.joined {
		conn := s.conns[id]
		statuses = append(statuses, ServerStatus{
			ID:        id,
			Name:      srv.Name,
			Connected: conn != nil && conn.sock.Connected(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Servers lists the joined servers.
func (s *Session) Servers() []Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]Server, 0, len(s.joined))
	for _, srv := range s.joined {
		servers = append(servers, srv)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers
}

// Self returns the bot's identity from the initial lookup.
func (s *Session) Self() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// Uptime reports time since Run completed its identity lookup.
func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Cache exposes the request cache, mainly so operators can bulk-clear it.
func (s *Session) Cache() *rest.Cache { return s.cache }

// openConnection dials the socket for serverID and registers its handlers.
// Any previous socket for the server is closed first: a dropped socket may
// still be counting down its backoff loop, and closing it is what keeps a
// superseded connection from redialing alongside the replacement.
func (s *Session) openConnection(ctx context.Context, serverID string) error {
	s.mu.Lock()
	old := s.conns[serverID]
	s.mu.Unlock()
	if old != nil {
		old.sock.Close()
	}

	sockURL := s.socketURL + "?server=" + url.QueryEscape(serverID)
	sock := transport.NewSocket(sockURL, s.authHeader(), s.backoff, s.log)

	sock.On(transport.EventConnect, func(json.RawMessage) {
		s.log.Info().Str("server", serverID).Msg("server connected")
	})
	sock.On(transport.EventDisconnect, func(json.RawMessage) {
		s.log.Warn().Str("server", serverID).Msg("server disconnected")
	})
	sock.On(transport.EventConnectError, func(data json.RawMessage) {
		err := payloadError(data)
		s.log.Error().Err(err).Str("server", serverID).Msg("socket error")
		s.hooks.OnError(err, "socket")
	})

	inbound := func(data json.RawMessage) { s.handleInbound(serverID, data) }
	sock.On(transport.EventMessage, inbound)
	sock.On(transport.EventPrompt, inbound)

	if err := sock.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to server %s: %w", serverID, err)
	}

	s.mu.Lock()
	s.conns[serverID] = &connection{
		serverID: serverID,
		sock:     sock,
		limiter:  rate.NewLimiter(rate.Every(s.sendEvery), 1),
	}
	s.mu.Unlock()
	return nil
}

// authHeader builds the session-identifying cookie/header pair sent on
// every dial.
func (s *Session) authHeader() http.Header {
	h := http.Header{}
	h.Set("Cookie", "token="+s.token+"; botid="+s.botID)
	h.Set("X-Bot-ID", s.botID)
	return h
}

func payloadError(data json.RawMessage) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil || msg == "" {
		msg = "socket failure"
	}
	return fmt.Errorf("%s", msg)
}
