package bot

import "github.com/kestrelworks/roost/internal/logging"

// Hooks are operator-supplied callbacks invoked at fixed dispatch points.
// Unset hooks default to no-ops; OnError defaults to logging.
type Hooks struct {
	// OnStart runs once all initial connections have been initiated.
	OnStart func()
	// OnError receives every reported failure with its location tag.
	OnError func(err error, location string)
	// OnMessage runs exactly once per accepted inbound message, before any
	// command dispatch.
	OnMessage func(ctx *Context)
}

// withDefaults fills unset hooks.
func (h Hooks) withDefaults(log *logging.Logger) Hooks {
	if h.OnStart == nil {
		h.OnStart = func() {}
	}
	if h.OnError == nil {
		h.OnError = func(err error, location string) {
			log.Error().Err(err).Str("location", location).Msg("unhandled error")
		}
	}
	if h.OnMessage == nil {
		h.OnMessage = func(*Context) {}
	}
	return h
}
