package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorlink/chat-service/internal/auth"
	"github.com/tutorlink/chat-service/internal/models"
	"github.com/tutorlink/chat-service/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Server owns the websocket endpoints. Each accepted connection is driven
// by the handler goroutine through handshake, joined loop, and teardown;
// the registry is the only state shared between connections.
type Server struct {
	upgrader   websocket.Upgrader
	registry   *Registry
	verifier   *auth.Verifier
	membership repository.MembershipRepo
	messages   repository.MessageRepo
	pairings   repository.PairingRepo

	dbTimeout time.Duration
}

func NewServer(registry *Registry, verifier *auth.Verifier, membership repository.MembershipRepo, messages repository.MessageRepo, pairings repository.PairingRepo) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry:   registry,
		verifier:   verifier,
		membership: membership,
		messages:   messages,
		pairings:   pairings,
		dbTimeout:  5 * time.Second,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/chat/{roomID}", s.HandleRoomChat)
	r.Get("/ws/private/{userID}", s.HandlePrivateChat)
	return r
}

// bearerToken pulls the credential from the token query parameter or the
// Authorization header.
func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// authenticate runs the credential through the verifier and resolves the
// subject to a user row. On failure it closes ws with the matching code and
// returns nil.
func (s *Server) authenticate(ctx context.Context, token string, ws *wsConn) *models.User {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			slog.Warn("connection rejected: no credential")
			ws.CloseWithCode(CloseAuthRequired, "authentication required")
		case errors.Is(err, auth.ErrTokenExpired):
			slog.Warn("connection rejected: expired token")
			ws.CloseWithCode(CloseTokenExpired, "token expired")
		default:
			slog.Warn("connection rejected: malformed token")
			ws.CloseWithCode(CloseTokenMalformed, "invalid token")
		}
		return nil
	}

	dbctx, cancel := context.WithTimeout(ctx, s.dbTimeout)
	defer cancel()

	user, err := s.membership.GetUserByID(dbctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			slog.Warn("connection rejected: unknown subject", "user_id", claims.UserID)
			ws.CloseWithCode(CloseUnknownSubject, "unknown user")
		} else {
			slog.Error("user lookup failed during handshake", "user_id", claims.UserID, "err", err)
			ws.CloseWithCode(CloseInternalError, "internal error")
		}
		return nil
	}
	return user
}

// HandleRoomChat serves GET /ws/chat/{roomID}. The upgrade happens before
// validation so handshake failures can carry an application close code.
func (s *Server) HandleRoomChat(w http.ResponseWriter, r *http.Request) {
	roomID, parseErr := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	ws := newWSConn(conn)
	defer ws.Close()

	if parseErr != nil || roomID <= 0 {
		ws.CloseWithCode(CloseNotFound, "unknown room")
		return
	}

	user := s.authenticate(r.Context(), bearerToken(r), ws)
	if user == nil {
		return
	}

	dbctx, cancel := context.WithTimeout(r.Context(), s.dbTimeout)
	exists, err := s.membership.RoomExists(dbctx, roomID)
	if err != nil {
		cancel()
		slog.Error("room lookup failed", "user_id", user.ID, "room_id", roomID, "err", err)
		ws.CloseWithCode(CloseInternalError, "internal error")
		return
	}
	if !exists {
		cancel()
		slog.Warn("room join refused: room absent", "user_id", user.ID, "room_id", roomID)
		ws.CloseWithCode(CloseNotFound, "unknown room")
		return
	}
	member, err := s.membership.IsRoomMember(dbctx, user.ID, roomID)
	cancel()
	if err != nil {
		slog.Error("membership check failed", "user_id", user.ID, "room_id", roomID, "err", err)
		ws.CloseWithCode(CloseInternalError, "internal error")
		return
	}
	if !member {
		slog.Warn("room join refused: not a member", "user_id", user.ID, "room_id", roomID)
		ws.CloseWithCode(CloseForbidden, "not a room member")
		return
	}

	key := RoomKey(roomID)
	s.registry.Join(key, ws)
	defer s.registry.Leave(key, ws)

	go ws.keepAlive()

	if err := ws.Send(&Envelope{
		Type:   TypeConnectionEstablished,
		RoomID: roomID,
		User:   ptr(user.Summary()),
	}); err != nil {
		return
	}
	slog.Info("user joined room", "user_id", user.ID, "room_key", key)

	sess := &roomSession{srv: s, ws: ws, user: user, roomID: roomID, roomKey: key}
	sess.run(r.Context())

	slog.Info("user left room", "user_id", user.ID, "room_key", key)
}

// HandlePrivateChat serves GET /ws/private/{userID}, where userID is the
// other participant.
func (s *Server) HandlePrivateChat(w http.ResponseWriter, r *http.Request) {
	peerID, parseErr := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}
	ws := newWSConn(conn)
	defer ws.Close()

	if parseErr != nil || peerID <= 0 {
		ws.CloseWithCode(CloseNotFound, "unknown user")
		return
	}

	user := s.authenticate(r.Context(), bearerToken(r), ws)
	if user == nil {
		return
	}

	dbctx, cancel := context.WithTimeout(r.Context(), s.dbTimeout)
	peer, err := s.membership.GetUserByID(dbctx, peerID)
	if err != nil {
		cancel()
		if errors.Is(err, repository.ErrUserNotFound) {
			slog.Warn("private chat refused: peer absent", "user_id", user.ID, "peer_id", peerID)
			ws.CloseWithCode(CloseNotFound, "unknown user")
		} else {
			slog.Error("peer lookup failed", "user_id", user.ID, "peer_id", peerID, "err", err)
			ws.CloseWithCode(CloseInternalError, "internal error")
		}
		return
	}

	connected, err := s.membership.IsConnected(dbctx, user.ID, peer.ID)
	cancel()
	if err != nil {
		slog.Error("connection check failed", "user_id", user.ID, "peer_id", peer.ID, "err", err)
		ws.CloseWithCode(CloseInternalError, "internal error")
		return
	}
	if !connected {
		slog.Warn("private chat refused: users not connected", "user_id", user.ID, "peer_id", peer.ID)
		ws.CloseWithCode(CloseForbidden, "users are not connected")
		return
	}

	key := PrivateKey(user.ID, peer.ID)
	s.registry.Join(key, ws)
	defer s.registry.Leave(key, ws)

	go ws.keepAlive()

	if err := ws.Send(&Envelope{
		Type:        TypeConnectionEstablished,
		CurrentUser: ptr(user.Summary()),
		OtherUser:   ptr(peer.Summary()),
	}); err != nil {
		return
	}
	slog.Info("private chat opened", "user_id", user.ID, "room_key", key)

	sess := &privateSession{srv: s, ws: ws, user: user, peer: peer, roomKey: key}
	sess.run(r.Context())

	slog.Info("private chat closed", "user_id", user.ID, "room_key", key)
}

func ptr[T any](v T) *T { return &v }
