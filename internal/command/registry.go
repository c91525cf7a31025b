// Package command provides the name-keyed handler registry consulted by the
// dispatcher for prefixed messages. Each bot session owns its own Registry;
// there is no process-wide command table.
package command

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kestrelworks/roost/internal/logging"
)

// ErrNotFound reports an unregistered command name.
var ErrNotFound = errors.New("command not found")

// Context is the per-message surface a handler receives. The bot's Context
// satisfies it; the interface keeps the registry decoupled from dispatch.
type Context interface {
	// Content returns the normalized message text.
	Content() string
	// ServerID identifies the server the message arrived on.
	ServerID() string
	// SenderName returns the display name of the message author.
	SenderName() string
	// Reply formats text through the markup engine and sends it back to the
	// originating server.
	Reply(text string) error
}

// Handler runs a command. args is the joined argument string, "" when the
// command was invoked bare.
type Handler func(ctx Context, args string) error

// Registry maps command names to handlers. Names are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		log:      log.Sub("commands"),
	}
}

// Register binds name to h. An empty name or nil handler is an error; a
// duplicate name overwrites the previous handler with a warning, never an
// error.
func (r *Registry) Register(name string, h Handler) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return errors.New("command name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("command %q: handler must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.log.Warn().Str("command", name).Msg("overwriting existing command handler")
	}
	r.handlers[name] = h
	r.log.Debug().Str("command", name).Msg("command registered")
	return nil
}

// Execute invokes the handler for name, timing the call. Unknown names fail
// with ErrNotFound; handler errors and panics surface to the caller instead
// of being swallowed.
func (r *Registry) Execute(ctx Context, name, args string) (err error) {
	r.mu.RLock()
	h, ok := r.handlers[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %q panicked: %v", name, p)
		}
		r.log.Info().
			Str("command", name).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("command executed")
	}()
	return h(ctx, args)
}

// Names returns the registered command names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
