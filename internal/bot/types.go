package bot

import (
	"encoding/json"
	"errors"
)

// Label marks special account classes on the platform. A label named "BOT"
// flags the account as automated.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// User is a platform account as embedded in message envelopes.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Label *Label `json:"label,omitempty"`
}

// DisplayName returns the user's name, falling back to the id.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// Message is the inbound wire shape. It is treated as immutable input.
type Message struct {
	Text     string `json:"text"`
	Owner    User   `json:"owner"`
	Date     int64  `json:"date"` // unix milliseconds
	ServerID string `json:"server_id"`
}

// Server is the platform's server metadata.
type Server struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Members int    `json:"members,omitempty"`
}

// Identity is the bot's own account as reported by the platform, including
// the servers it has joined.
type Identity struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Servers []Server `json:"servers"`
}

// outbound is the payload emitted on a "message" frame.
type outbound struct {
	Text     string `json:"text"`
	ServerID string `json:"server_id"`
}

var errBadEnvelope = errors.New("envelope missing sender id or text")

// decodeEnvelope normalizes an inbound payload. The platform sends either
// the message itself or a wrapper nesting it under "message"; both shapes
// are accepted. Envelopes without a sender id or text are rejected.
func decodeEnvelope(data json.RawMessage) (Message, error) {
	var wrapped struct {
		Message *Message `json:"message"`
	}
	var msg Message
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Message != nil {
		msg = *wrapped.Message
	} else if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}

	if msg.Owner.ID == "" || msg.Text == "" {
		return Message{}, errBadEnvelope
	}
	return msg, nil
}
