package bot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is the per-message facade handed to the onMessage hook and to
// command handlers. One Context is created per accepted inbound message and
// is not reused, though user code may capture it.
type Context struct {
	session *Session
	msg     Message
	raw     json.RawMessage // non-owning debug reference to the envelope
	id      string
	created time.Time

	mu     sync.RWMutex
	server *Server // resolved asynchronously; nil until the lookup lands
}

func newContext(s *Session, msg Message, raw json.RawMessage) *Context {
	return &Context{
		session: s,
		msg:     msg,
		raw:     raw,
		id:      uuid.New().String(),
		created: time.Now(),
	}
}

// ID is a unique identifier for this dispatch.
func (c *Context) ID() string { return c.id }

// Content returns the normalized message text.
func (c *Context) Content() string { return c.msg.Text }

// Sender returns the message author.
func (c *Context) Sender() User { return c.msg.Owner }

// SenderName returns the author's display name.
func (c *Context) SenderName() string { return c.msg.Owner.DisplayName() }

// ServerID identifies the server the message arrived on.
func (c *Context) ServerID() string { return c.msg.ServerID }

// Date returns the platform timestamp of the message.
func (c *Context) Date() time.Time { return time.UnixMilli(c.msg.Date) }

// Raw exposes the original envelope for debugging. The normalized accessors
// above are the canonical source of truth; Raw may be retained or discarded
// by the caller without affecting them.
func (c *Context) Raw() json.RawMessage { return c.raw }

// Server returns the resolved server metadata. The lookup runs
// asynchronously after the Context is created, so this returns nil until it
// completes (or forever, if the lookup fails).
func (c *Context) Server() *Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Reply formats text through the markup engine and sends it to the server
// this message arrived on.
func (c *Context) Reply(text string) error {
	return c.session.Send(text, c.msg.ServerID)
}

// resolveServer fetches server metadata through the request cache.
func (c *Context) resolveServer(ctx context.Context) {
	v, err := c.session.cache.Fetch(ctx, c.session.rest.URL("/server/"+c.msg.ServerID))
	if err != nil || v == nil {
		return
	}

	// The cache stores decoded JSON; round-trip it into the typed shape.
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	var srv Server
	if err := json.Unmarshal(raw, &srv); err != nil {
		return
	}
	if srv.ID == "" {
		srv.ID = c.msg.ServerID
	}

	c.mu.Lock()
	c.server = &srv
	c.mu.Unlock()
}
