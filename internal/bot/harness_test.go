package bot

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
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/roost/internal/config"
	"github.com/kestrelworks/roost/internal/logging"
	"github.com/kestrelworks/roost/internal/transport"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// serverFrame is one frame the bot emitted, tagged with the server whose
// socket carried it.
type serverFrame struct {
	serverID string
	frame    transport.Frame
}

// fakePlatform serves the REST endpoints and the socket endpoint the session
// talks to, recording what the bot does.
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server

	frames chan serverFrame

	mu            sync.Mutex
	identity      Identity
	failIdentity  bool
	rejectSockets bool
	profiles      map[string]string
	serverNames   map[string]string
	joins         []string
	settings      map[string]string
	sockets       map[string]*websocket.Conn
	upgrades      map[string]int
}

func newFakePlatform(t *testing.T, servers ...Server) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		t:           t,
		frames:      make(chan serverFrame, 16),
		identity:    Identity{ID: "bot-1", Name: "roosty", Servers: servers},
		profiles:    make(map[string]string),
		serverNames: make(map[string]string),
		settings:    make(map[string]string),
		sockets:     make(map[string]*websocket.Conn),
		upgrades:    make(map[string]int),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/bot/info", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		fail, ident := p.failIdentity, p.identity
		p.mu.Unlock()
		if fail {
			http.Error(w, "identity unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ident)
	})

	mux.HandleFunc("/bot/join", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.mu.Lock()
		p.joins = append(p.joins, r.Form.Get("server"))
		p.mu.Unlock()
	})

	mux.HandleFunc("/bot/setting", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.mu.Lock()
		p.settings[r.Form.Get("key")] = r.Form.Get("value")
		p.mu.Unlock()
	})

	mux.HandleFunc("/server/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/server/")
		p.mu.Lock()
		name := p.serverNames[id]
		p.mu.Unlock()
		if name == "" {
			name = "server " + id
		}
		json.NewEncoder(w).Encode(Server{ID: id, Name: name})
	})

	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/user/")
		p.mu.Lock()
		label, ok := p.profiles[id]
		p.mu.Unlock()
		u := User{ID: id}
		if ok {
			u.Label = &Label{Name: label}
		}
		json.NewEncoder(w).Encode(u)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		reject := p.rejectSockets
		p.mu.Unlock()
		if reject {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		id := r.URL.Query().Get("server")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.sockets[id] = conn
		p.upgrades[id]++
		p.mu.Unlock()

		go func() {
			for {
				var f transport.Frame
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				p.frames <- serverFrame{serverID: id, frame: f}
			}
		}()
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// config returns a session config pointed at the fake platform, with short
// timings suitable for tests.
func (p *fakePlatform) config() config.Config {
	cfg := config.Defaults()
	cfg.Credentials = config.CredentialsConfig{Token: "tok", BotID: "bot-1"}
	cfg.API.BaseURL = p.srv.URL
	cfg.API.SocketURL = "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/ws"
	cfg.Bot.SendIntervalMs = 1
	cfg.Reconnect.BaseDelayMs = 10
	return cfg
}

// push writes an inbound frame on the socket held open for serverID.
func (p *fakePlatform) push(serverID, event, payload string) {
	p.t.Helper()
	var conn *websocket.Conn
	require.Eventually(p.t, func() bool {
		p.mu.Lock()
		conn = p.sockets[serverID]
		p.mu.Unlock()
		return conn != nil
	}, 2*time.Second, 10*time.Millisecond, "no socket for server %s", serverID)
	require.NoError(p.t, conn.WriteJSON(transport.Frame{Event: event, Data: json.RawMessage(payload)}))
}

// nextFrame waits for the next frame the bot emits.
func (p *fakePlatform) nextFrame() serverFrame {
	p.t.Helper()
	select {
	case f := <-p.frames:
		return f
	case <-time.After(2 * time.Second):
		p.t.Fatal("no frame emitted by bot")
		return serverFrame{}
	}
}

// dropSocket closes the server side of an open connection, simulating a
// platform-initiated drop.
func (p *fakePlatform) dropSocket(serverID string) {
	p.t.Helper()
	p.mu.Lock()
	conn := p.sockets[serverID]
	p.mu.Unlock()
	require.NotNil(p.t, conn, "no socket for server %s", serverID)
	require.NoError(p.t, conn.Close())
}

func (p *fakePlatform) upgradeCount(serverID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upgrades[serverID]
}

func (p *fakePlatform) setProfile(userID, label string) {
	p.mu.Lock()
	p.profiles[userID] = label
	p.mu.Unlock()
}

func (p *fakePlatform) setRejectSockets(reject bool) {
	p.mu.Lock()
	p.rejectSockets = reject
	p.mu.Unlock()
}

func (p *fakePlatform) setFailIdentity(fail bool) {
	p.mu.Lock()
	p.failIdentity = fail
	p.mu.Unlock()
}

func (p *fakePlatform) joinCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.joins...)
}

func (p *fakePlatform) setting(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings[key]
}

// startSession runs a session against the platform and tears it down with
// the test.
func startSession(t *testing.T, p *fakePlatform, cfg config.Config, opts ...Option) *Session {
	t.Helper()
	s := New(cfg, testLogger(), opts...)
	require.NoError(t, s.Run(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// waitConnected blocks until the session reports a live connection for
// serverID.
func waitConnected(t *testing.T, s *Session, serverID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, st := range s.Status() {
			if st.ID == serverID && st.Connected {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "server %s never connected", serverID)
}

// decodeOutbound unpacks the payload of an emitted message frame.
func decodeOutbound(t *testing.T, f serverFrame) outbound {
	t.Helper()
	var out outbound
	require.NoError(t, json.Unmarshal(f.frame.Data, &out))
	return out
}
