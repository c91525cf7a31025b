package bot

import (
	"errors"
	"fmt"
)

// Send and membership failures. All are reported, none crash the session.
var (
	// ErrNotConnected is returned when sending to a server the bot has no
	// live connection to.
	ErrNotConnected = errors.New("not connected to server")
	// ErrEmptyMessage is returned for blank outbound text.
	ErrEmptyMessage = errors.New("message text must not be empty")
	// ErrRateLimited is returned when a send arrives before the
	// per-connection interval has elapsed. The message is dropped, not
	// queued.
	ErrRateLimited = errors.New("rate limited")
	// ErrAlreadyJoined is returned by Join for a server the bot is in.
	ErrAlreadyJoined = errors.New("server already joined")
	// ErrNotJoined is returned by Reconnect for an unknown server.
	ErrNotJoined = errors.New("server not joined")
)

// JoinError reports a join whose membership call succeeded but whose
// connection failed to open. The server counts as joined; retry the
// connection step with Session.Reconnect, not the join.
type JoinError struct {
	ServerID string
	Err      error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("joined server %s but opening connection failed: %v", e.ServerID, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
