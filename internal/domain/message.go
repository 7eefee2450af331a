package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// Message is a single chat message as the backend emits it.
// Once received it is never modified by the client.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// UnmarshalJSON accepts "id" for "_id" and "content" for "text", so both the
// backend's document shape and the plain record shape decode the same way.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		AltID   string `json:"id"`
		Content string `json:"content"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = aux.AltID
	}
	if m.Text == "" {
		m.Text = aux.Content
	}
	return nil
}

// SendPayload is the body of an outgoing message. The backend requires at
// least one of Text or Image.
type SendPayload struct {
	Text  string `json:"text,omitempty" validate:"required_without=Image,max=4096"`
	Image string `json:"image,omitempty" validate:"omitempty,uri|datauri"`
}

// Validate runs validation checks on the payload using the defined tags.
func (p *SendPayload) Validate() error {
	p.Text = strings.TrimSpace(p.Text)
	return validatorInstance.Struct(p)
}
