package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kestrelworks/roost/internal/command"
)

// handleInbound is the entry point for message and prompt frames. Malformed
// envelopes and messages from automated senders are dropped here; nothing
// past this point may take the session down.
func (s *Session) handleInbound(serverID string, data json.RawMessage) {
	msg, err := decodeEnvelope(data)
	if err != nil {
		s.log.Debug().Err(err).Str("server", serverID).Msg("dropping malformed envelope")
		return
	}
	if msg.ServerID == "" {
		msg.ServerID = serverID
	}

	if s.isAutomated(msg.Owner) {
		s.log.Debug().Str("sender", msg.Owner.ID).Msg("ignoring automated sender")
		return
	}

	ctx := newContext(s, msg, data)
	go ctx.resolveServer(s.runCtx)

	s.dispatch(ctx)
}

// dispatch delivers one message: the OnMessage hook exactly once, then the
// registry if the text carries the command prefix. A panicking hook is
// caught and reported like any other handler failure.
func (s *Session) dispatch(ctx *Context) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("message hook panicked: %v", p)
			s.log.Error().Err(err).Str("message", ctx.ID()).Msg("dispatch failure isolated")
			s.hooks.OnError(err, "dispatch")
		}
	}()

	s.hooks.OnMessage(ctx)

	if !strings.HasPrefix(ctx.Content(), s.prefix) {
		return
	}
	name, args := splitCommand(ctx.Content(), len(s.prefix))
	if name == "" {
		return
	}
	s.runCommand(ctx, name, args)
}

// splitCommand strips the prefix at a literal offset (the prefix is not a
// pattern) and separates the command name from its argument string.
func splitCommand(text string, prefixLen int) (name, args string) {
	fields := strings.Fields(text[prefixLen:])
	if len(fields) == 0 {
		return "", ""
	}
	return strings.ToLower(fields[0]), strings.Join(fields[1:], " ")
}

func (s *Session) runCommand(ctx *Context, name, args string) {
	if s.commands == nil {
		s.reportCommandError(ctx, fmt.Errorf("%w: %q", command.ErrNotFound, name))
		return
	}
	if err := s.commands.Execute(ctx, name, args); err != nil {
		s.reportCommandError(ctx, err)
	}
}

// reportCommandError logs a failed or unknown command, notifies the error
// hook and, when configured, echoes the failure back to the server.
func (s *Session) reportCommandError(ctx *Context, err error) {
	if errors.Is(err, command.ErrNotFound) {
		s.log.Warn().Err(err).Str("server", ctx.ServerID()).Msg("unknown command")
	} else {
		s.log.Error().Err(err).Str("server", ctx.ServerID()).Msg("command failed")
	}
	s.hooks.OnError(err, "command")

	if s.echoErrors {
		if rerr := ctx.Reply("embed:error:" + err.Error()); rerr != nil {
			s.log.Debug().Err(rerr).Str("server", ctx.ServerID()).Msg("error echo failed")
		}
	}
}

// isAutomated reports whether the sender is another bot. The fast path is
// the label on the message itself; senders without one are looked up via
// the cached profile endpoint. Lookup failures count as human so a flaky
// profile endpoint can not silence real users.
func (s *Session) isAutomated(owner User) bool {
	if owner.Label != nil {
		return owner.Label.Name == "BOT"
	}
	if owner.ID == "" {
		return false
	}

	v, err := s.cache.Fetch(s.runCtx, s.rest.URL("/user/"+owner.ID))
	if err != nil || v == nil {
		return false
	}
	profile, ok := v.(map[string]any)
	if !ok {
		return false
	}
	label, ok := profile["label"].(map[string]any)
	if !ok {
		return false
	}
	name, _ := label["name"].(string)
	return name == "BOT"
}
