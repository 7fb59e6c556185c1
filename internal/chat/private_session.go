package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tutorlink/chat-service/internal/models"
)

// privateSession is the joined-state loop for a pairwise chat connection.
// Authorization is re-checked on every message frame because connections
// can be revoked while a session is open; revocation blocks further sends
// but does not close the session.
type privateSession struct {
	srv     *Server
	ws      *wsConn
	user    *models.User
	peer    *models.User
	roomKey string
}

func (s *privateSession) run(ctx context.Context) {
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
			slog.Debug("private session read ended", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
			return
		}

		env, err := Decode(raw)
		if err != nil {
			s.sendError("Invalid JSON format")
			continue
		}

		switch env.Type {
		case TypePing:
			_ = s.ws.Send(&Envelope{Type: TypePong})
		case TypeMessage:
			s.handleMessage(ctx, env)
		case TypeTyping:
			s.handleTyping()
		case TypeFile:
			s.handleFile(ctx, env)
		default:
			slog.Warn("unknown message type ignored", "type", env.Type, "user_id", s.user.ID, "room_key", s.roomKey)
		}
	}
}

func (s *privateSession) handleMessage(ctx context.Context, env *Envelope) {
	content := strings.TrimSpace(env.Content)
	if content == "" {
		s.sendError("Message cannot be empty")
		return
	}

	dbctx, cancel := context.WithTimeout(ctx, s.srv.dbTimeout)
	defer cancel()

	connected, err := s.srv.membership.IsConnected(dbctx, s.user.ID, s.peer.ID)
	if err != nil {
		slog.Error("connection recheck failed", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
		s.sendError("Failed to send message")
		return
	}
	if !connected {
		slog.Warn("send blocked: connection revoked", "user_id", s.user.ID, "room_key", s.roomKey)
		s.sendError("Cannot send message - users are not connected")
		return
	}

	chatID, ok := s.pairingID(dbctx)
	if !ok {
		return
	}

	msg, err := s.srv.messages.CreatePrivateMessage(dbctx, chatID, s.user.ID, content)
	if err != nil {
		slog.Error("private message persist failed", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
		s.sendError("Failed to send message")
		return
	}

	s.srv.registry.Publish(s.roomKey, &Envelope{
		Type:      TypeMessage,
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    ptr(s.user.Summary()),
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		ChatID:    chatID,
	}, nil)
}

// handleTyping fans out a transient notification; nothing is persisted.
func (s *privateSession) handleTyping() {
	s.srv.registry.Publish(s.roomKey, &Envelope{
		Type:   TypeTyping,
		Sender: ptr(s.user.Summary()),
	}, nil)
}

// handleFile persists a placeholder message for the file and forwards the
// payload fields verbatim on the outgoing envelope. The payload itself is
// not validated or scanned here.
func (s *privateSession) handleFile(ctx context.Context, env *Envelope) {
	if len(env.File) == 0 || env.Filename == "" {
		s.sendError("Invalid file data")
		return
	}

	dbctx, cancel := context.WithTimeout(ctx, s.srv.dbTimeout)
	defer cancel()

	chatID, ok := s.pairingID(dbctx)
	if !ok {
		return
	}

	msg, err := s.srv.messages.CreatePrivateMessage(dbctx, chatID, s.user.ID, "📎 "+env.Filename)
	if err != nil {
		slog.Error("file message persist failed", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
		s.sendError("Failed to send message")
		return
	}

	s.srv.registry.Publish(s.roomKey, &Envelope{
		Type:      TypeMessage,
		ID:        msg.ID,
		Content:   msg.Content,
		File:      env.File,
		Filename:  env.Filename,
		Filesize:  env.Filesize,
		Sender:    ptr(s.user.Summary()),
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		ChatID:    chatID,
	}, nil)
}

// pairingID fetches or lazily creates the pairing row for this session's
// participants. Connecting does not guarantee the row exists; the first
// send does.
func (s *privateSession) pairingID(ctx context.Context) (int64, bool) {
	chatID, err := s.srv.pairings.GetOrCreate(ctx, s.user.ID, s.peer.ID)
	if err != nil {
		slog.Error("pairing lookup failed", "user_id", s.user.ID, "room_key", s.roomKey, "err", err)
		s.sendError("Failed to create chat")
		return 0, false
	}
	return chatID, true
}

func (s *privateSession) sendError(message string) {
	_ = s.ws.Send(errorEnvelope(message))
}
