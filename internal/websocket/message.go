package websocket

import "encoding/json"

// Events pushed by the chat backend over the live connection.
const (
	EventNewMessage  = "newMessage"
	EventOnlineUsers = "getOnlineUsers"
)

// Message is the envelope every frame on the live connection uses.
type Message struct {
	Type    string          `json:"type"` // Event name (e.g., "newMessage")
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope, marshaling payload to JSON.
func NewMessage(msgType string, payload any, target ...string) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		Type:    msgType,
		Payload: raw,
	}
	if len(target) > 0 {
		msg.Target = target[0]
	}
	return msg, nil
}

// topicFor maps an event name onto its bus topic.
func topicFor(event string) string {
	return "ws.event." + event
}
