package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tutorlink/chat-service/internal/auth"
	"github.com/tutorlink/chat-service/internal/models"
	"github.com/tutorlink/chat-service/internal/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pairKey [2]int64

func canon(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// fakeStore implements the membership, message, and pairing repositories
// in memory for session tests.
type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]*models.User
	rooms     map[int64]map[int64]bool
	connected map[pairKey]bool
	chats     map[pairKey]int64
	nextChat  int64
	nextMsg   int64
	roomMsgs  []*models.ChatMessage
	privMsgs  []*models.PrivateMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[int64]*models.User),
		rooms:     make(map[int64]map[int64]bool),
		connected: make(map[pairKey]bool),
		chats:     make(map[pairKey]int64),
	}
}

func (f *fakeStore) addUser(id int64, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &models.User{ID: id, Username: username, CreatedAt: time.Now()}
}

func (f *fakeStore) addRoom(roomID int64, memberIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make(map[int64]bool)
	for _, id := range memberIDs {
		members[id] = true
	}
	f.rooms[roomID] = members
}

func (f *fakeStore) setConnected(a, b int64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[canon(a, b)] = ok
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rooms[roomID]
	return ok, nil
}

func (f *fakeStore) IsRoomMember(ctx context.Context, userID, roomID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[roomID][userID], nil
}

func (f *fakeStore) IsConnected(ctx context.Context, userA, userB int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[canon(userA, userB)], nil
}

func (f *fakeStore) SyncRoomMembers(ctx context.Context) error { return nil }

func (f *fakeStore) CreateRoomMessage(ctx context.Context, roomID, senderID int64, text string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	msg := &models.ChatMessage{ID: f.nextMsg, RoomID: roomID, SenderID: senderID, Text: text, CreatedAt: time.Now()}
	f.roomMsgs = append(f.roomMsgs, msg)
	return msg, nil
}

func (f *fakeStore) CreatePrivateMessage(ctx context.Context, chatID, senderID int64, content string) (*models.PrivateMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	msg := &models.PrivateMessage{ID: f.nextMsg, ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: time.Now()}
	f.privMsgs = append(f.privMsgs, msg)
	return msg, nil
}

func (f *fakeStore) GetOrCreate(ctx context.Context, userA, userB int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := canon(userA, userB)
	if id, ok := f.chats[key]; ok {
		return id, nil
	}
	f.nextChat++
	f.chats[key] = f.nextChat
	return f.nextChat, nil
}

func (f *fakeStore) roomMessageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.roomMsgs)
}

func (f *fakeStore) privateMessages() []*models.PrivateMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.PrivateMessage, len(f.privMsgs))
	copy(out, f.privMsgs)
	return out
}

func newTestEnv(t *testing.T) (*fakeStore, *Registry, *httptest.Server, *auth.Verifier) {
	t.Helper()
	store := newFakeStore()
	registry := NewRegistry()
	verifier := auth.NewVerifier("test-secret")
	srv := NewServer(registry, verifier, store, store, store)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return store, registry, ts, verifier
}

func dial(t *testing.T, ts *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mintToken(t *testing.T, v *auth.Verifier, userID int64) string {
	t.Helper()
	token, err := v.Issue(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	return env
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, code, ce.Code)
}

func sendJSON(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func TestRoomHandshakeFailures(t *testing.T) {
	store, registry, ts, verifier := newTestEnv(t)
	store.addUser(1, "alice")
	store.addUser(2, "bob")
	store.addRoom(1, 1)

	t.Run("missing credential", func(t *testing.T) {
		conn := dial(t, ts, "/ws/chat/1", nil)
		expectClose(t, conn, CloseAuthRequired)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := verifier.Issue(1, -time.Minute)
		require.NoError(t, err)
		conn := dial(t, ts, "/ws/chat/1?token="+token, nil)
		expectClose(t, conn, CloseTokenExpired)
	})

	t.Run("malformed token", func(t *testing.T) {
		conn := dial(t, ts, "/ws/chat/1?token=not.a.jwt", nil)
		expectClose(t, conn, CloseTokenMalformed)
	})

	t.Run("unknown subject", func(t *testing.T) {
		conn := dial(t, ts, "/ws/chat/1?token="+mintToken(t, verifier, 999), nil)
		expectClose(t, conn, CloseUnknownSubject)
	})

	t.Run("room absent", func(t *testing.T) {
		conn := dial(t, ts, "/ws/chat/404?token="+mintToken(t, verifier, 1), nil)
		expectClose(t, conn, CloseNotFound)
	})

	t.Run("not a member", func(t *testing.T) {
		conn := dial(t, ts, "/ws/chat/1?token="+mintToken(t, verifier, 2), nil)
		expectClose(t, conn, CloseForbidden)
		assert.Equal(t, 0, registry.GroupSize(RoomKey(1)), "refused session must never join the group")
	})
}

func TestRoomChatSession(t *testing.T) {
	store, registry, ts, verifier := newTestEnv(t)
	store.addUser(1, "alice")
	store.addRoom(1, 1)

	conn := dial(t, ts, "/ws/chat/1?token="+mintToken(t, verifier, 1), nil)

	hello := readEnvelope(t, conn)
	require.Equal(t, TypeConnectionEstablished, hello.Type)
	require.NotNil(t, hello.User)
	assert.Equal(t, int64(1), hello.User.ID)
	assert.Equal(t, "alice", hello.User.Username)
	assert.Equal(t, int64(1), hello.RoomID)

	t.Run("ping pong", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"ping"}`)
		assert.Equal(t, TypePong, readEnvelope(t, conn).Type)
	})

	t.Run("malformed frame keeps connection open", func(t *testing.T) {
		sendJSON(t, conn, `not json`)
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeError, env.Type)

		sendJSON(t, conn, `{"type":"ping"}`)
		assert.Equal(t, TypePong, readEnvelope(t, conn).Type)
	})

	t.Run("whitespace-only message rejected", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"message","content":"   "}`)
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeError, env.Type)
		assert.Equal(t, "Message content cannot be empty", env.Message)
		assert.Equal(t, 0, store.roomMessageCount(), "nothing may be persisted")
	})

	t.Run("message persisted and broadcast", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"message","content":"hello room"}`)
		env := readEnvelope(t, conn)
		require.Equal(t, TypeMessage, env.Type)
		assert.Equal(t, "hello room", env.Text)
		assert.Equal(t, int64(1), env.Sender.ID)
		assert.Equal(t, int64(1), env.RoomID)
		assert.NotZero(t, env.ID)
		_, err := time.Parse(time.RFC3339, env.CreatedAt)
		assert.NoError(t, err)
		assert.Equal(t, 1, store.roomMessageCount())
	})

	t.Run("legacy text field accepted", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"message","text":"from old client"}`)
		env := readEnvelope(t, conn)
		require.Equal(t, TypeMessage, env.Type)
		assert.Equal(t, "from old client", env.Text)
	})

	t.Run("unknown frame type ignored", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"presence_probe"}`)
		sendJSON(t, conn, `{"type":"ping"}`)
		assert.Equal(t, TypePong, readEnvelope(t, conn).Type, "no error frame may precede the pong")
	})

	conn.Close()
	require.Eventually(t, func() bool {
		return registry.GroupSize(RoomKey(1)) == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect must deregister the session")
}

func TestRoomSessionBearerHeader(t *testing.T) {
	store, _, ts, verifier := newTestEnv(t)
	store.addUser(1, "alice")
	store.addRoom(1, 1)

	header := http.Header{"Authorization": []string{"Bearer " + mintToken(t, verifier, 1)}}
	conn := dial(t, ts, "/ws/chat/1", header)

	assert.Equal(t, TypeConnectionEstablished, readEnvelope(t, conn).Type)
}

func TestPrivateChatScenario(t *testing.T) {
	store, registry, ts, verifier := newTestEnv(t)
	store.addUser(5, "eve")
	store.addUser(9, "nina")
	store.setConnected(5, 9, true)

	// connection order must not matter for group discovery
	connNina := dial(t, ts, "/ws/private/5?token="+mintToken(t, verifier, 9), nil)
	connEve := dial(t, ts, "/ws/private/9?token="+mintToken(t, verifier, 5), nil)

	helloNina := readEnvelope(t, connNina)
	require.Equal(t, TypeConnectionEstablished, helloNina.Type)
	assert.Equal(t, int64(9), helloNina.CurrentUser.ID)
	assert.Equal(t, int64(5), helloNina.OtherUser.ID)

	helloEve := readEnvelope(t, connEve)
	require.Equal(t, TypeConnectionEstablished, helloEve.Type)
	assert.Equal(t, int64(5), helloEve.CurrentUser.ID)

	require.Eventually(t, func() bool {
		return registry.GroupSize(PrivateKey(5, 9)) == 2
	}, 2*time.Second, 10*time.Millisecond, "both sessions must land in private_chat_5_9")

	sendJSON(t, connEve, `{"type":"message","content":"hi"}`)

	got := readEnvelope(t, connNina)
	require.Equal(t, TypeMessage, got.Type)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, int64(5), got.Sender.ID)
	assert.NotZero(t, got.ChatID)

	echo := readEnvelope(t, connEve)
	assert.Equal(t, "hi", echo.Content)

	msgs := store.privateMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].SenderID)
	assert.Equal(t, "hi", msgs[0].Content)

	t.Run("typing is transient", func(t *testing.T) {
		sendJSON(t, connNina, `{"type":"typing"}`)
		env := readEnvelope(t, connEve)
		require.Equal(t, TypeTyping, env.Type)
		assert.Equal(t, int64(9), env.Sender.ID)
		assert.Len(t, store.privateMessages(), 1, "typing must not be persisted")
	})

	connEve.Close()
	connNina.Close()
	require.Eventually(t, func() bool {
		return registry.GroupSize(PrivateKey(5, 9)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPrivateChatRevokedMidSession(t *testing.T) {
	store, _, ts, verifier := newTestEnv(t)
	store.addUser(5, "eve")
	store.addUser(9, "nina")
	store.setConnected(5, 9, true)

	conn := dial(t, ts, "/ws/private/9?token="+mintToken(t, verifier, 5), nil)
	require.Equal(t, TypeConnectionEstablished, readEnvelope(t, conn).Type)

	store.setConnected(5, 9, false)

	sendJSON(t, conn, `{"type":"message","content":"hey"}`)
	env := readEnvelope(t, conn)
	require.Equal(t, TypeError, env.Type)
	assert.Equal(t, "Cannot send message - users are not connected", env.Message)
	assert.Empty(t, store.privateMessages(), "revoked send must not persist")

	// revocation blocks sends but leaves the session open
	sendJSON(t, conn, `{"type":"ping"}`)
	assert.Equal(t, TypePong, readEnvelope(t, conn).Type)
}

func TestPrivateChatAuthorization(t *testing.T) {
	store, _, ts, verifier := newTestEnv(t)
	store.addUser(5, "eve")
	store.addUser(9, "nina")

	t.Run("not connected", func(t *testing.T) {
		conn := dial(t, ts, "/ws/private/9?token="+mintToken(t, verifier, 5), nil)
		expectClose(t, conn, CloseForbidden)
	})

	t.Run("peer absent", func(t *testing.T) {
		conn := dial(t, ts, "/ws/private/404?token="+mintToken(t, verifier, 5), nil)
		expectClose(t, conn, CloseNotFound)
	})
}

func TestPrivateChatFileFrame(t *testing.T) {
	store, _, ts, verifier := newTestEnv(t)
	store.addUser(5, "eve")
	store.addUser(9, "nina")
	store.setConnected(5, 9, true)

	conn := dial(t, ts, "/ws/private/9?token="+mintToken(t, verifier, 5), nil)
	require.Equal(t, TypeConnectionEstablished, readEnvelope(t, conn).Type)

	t.Run("missing payload rejected", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"file","filename":"notes.pdf"}`)
		env := readEnvelope(t, conn)
		require.Equal(t, TypeError, env.Type)
		assert.Equal(t, "Invalid file data", env.Message)
	})

	t.Run("file forwarded with placeholder message", func(t *testing.T) {
		sendJSON(t, conn, `{"type":"file","file":"aGVsbG8=","filename":"notes.pdf","filesize":5}`)
		env := readEnvelope(t, conn)
		require.Equal(t, TypeMessage, env.Type)
		assert.Equal(t, "📎 notes.pdf", env.Content)
		assert.Equal(t, "notes.pdf", env.Filename)
		assert.Equal(t, int64(5), env.Filesize)
		assert.NotEmpty(t, env.File)

		msgs := store.privateMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "📎 notes.pdf", msgs[0].Content)
	})
}
