package chat

import (
	"encoding/json"
	"errors"

	"github.com/tutorlink/chat-service/internal/models"
)

// Envelope type discriminators. Unknown inbound types are logged and
// ignored so newer clients do not break older servers.
const (
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeMessage               = "message"
	TypeTyping                = "typing"
	TypeFile                  = "file"
	TypeError                 = "error"
	TypeConnectionEstablished = "connection_established"
)

// ErrMalformedFrame reports a frame that is not a JSON object. It is
// answered with an error envelope, never a connection close.
var ErrMalformedFrame = errors.New("frame is not a JSON object")

// Envelope is one unit of the wire protocol, inbound or outbound,
// discriminated by Type. Unused fields are omitted on the wire.
type Envelope struct {
	Type string `json:"type"`

	// Message body: room chat speaks "text" (and accepts it as a legacy
	// inbound alias), private chat speaks "content".
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`

	// File frames carry the payload through untouched.
	File     json.RawMessage `json:"file,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Filesize int64           `json:"filesize,omitempty"`

	// Outbound message metadata.
	ID        int64               `json:"id,omitempty"`
	Sender    *models.UserSummary `json:"sender,omitempty"`
	CreatedAt string              `json:"created_at,omitempty"`
	RoomID    int64               `json:"room_id,omitempty"`
	ChatID    int64               `json:"chat_id,omitempty"`

	// Error envelopes.
	Message string `json:"message,omitempty"`

	// Connection confirmation identity echoes.
	User        *models.UserSummary `json:"user,omitempty"`
	CurrentUser *models.UserSummary `json:"current_user,omitempty"`
	OtherUser   *models.UserSummary `json:"other_user,omitempty"`
}

// Decode parses a raw frame. The frame must deserialize to a keyed JSON
// object; a missing type discriminator defaults to "message".
func Decode(raw []byte) (*Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		return nil, ErrMalformedFrame
	}

	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, ErrMalformedFrame
	}
	if env.Type == "" {
		env.Type = TypeMessage
	}
	return env, nil
}

func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func errorEnvelope(message string) *Envelope {
	return &Envelope{Type: TypeError, Message: message}
}
