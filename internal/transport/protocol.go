package transport

import "encoding/json"

// Event names delivered through Socket.On. Connect, disconnect and
// connect_error are synthesized locally; message and prompt arrive from the
// platform.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventMessage      = "message"
	EventPrompt       = "prompt"
)

// Frame is the JSON envelope carried on the socket in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame builds an outbound frame, marshaling payload into Data.
func NewFrame(event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}
