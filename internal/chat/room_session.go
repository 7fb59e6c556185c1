package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tutorlink/chat-service/internal/models"
)

// roomSession is the joined-state loop for a group chat connection. It is
// owned by the handler goroutine and never shared; all cross-session
// traffic goes through the registry.
type roomSession struct {
	srv     *Server
	ws      *wsConn
	user    *models.User
	roomID  int64
	roomKey string
}

// run reads frames until the transport errors out. Per-frame failures are
// answered with an error envelope; only a broken transport ends the loop.
func (s *roomSession) run(ctx context.Context) {
	conn := s.ws.conn
	conn.SetReadLimit(maxFrameSz)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("room session read ended", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
			return
		}

		env, err := Decode(raw)
		if err != nil {
			s.sendError("Invalid message format. Please send JSON with type and content.")
			continue
		}

		switch env.Type {
		case TypePing:
			_ = s.ws.Send(&Envelope{Type: TypePong})
		case TypeMessage:
			s.handleMessage(ctx, env)
		default:
			slog.Warn("unknown message type ignored", "type", env.Type, "user_id", s.user.ID, "room_key", s.roomKey)
		}
	}
}

func (s *roomSession) handleMessage(ctx context.Context, env *Envelope) {
	// content is the current field; text is kept for older clients.
	text := strings.TrimSpace(env.Content)
	if text == "" {
		text = strings.TrimSpace(env.Text)
	}
	if text == "" {
		s.sendError("Message content cannot be empty")
		return
	}

	dbctx, cancel := context.WithTimeout(ctx, s.srv.dbTimeout)
	msg, err := s.srv.messages.CreateRoomMessage(dbctx, s.roomID, s.user.ID, text)
	cancel()
	if err != nil {
		slog.Error("room message persist failed", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
		s.sendError("Failed to send message")
		return
	}

	s.srv.registry.Publish(s.roomKey, &Envelope{
		Type:      TypeMessage,
		ID:        msg.ID,
		Text:      msg.Text,
		Sender:    ptr(s.user.Summary()),
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		RoomID:    s.roomID,
	}, nil)
}

func (s *roomSession) sendError(message string) {
	_ = s.ws.Send(errorEnvelope(message))
}
