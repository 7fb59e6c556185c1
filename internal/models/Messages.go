package models

import (
	"time"
)

// ChatMessage is a persisted room-chat message. Immutable once created.
type ChatMessage struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PrivateMessage is a persisted private-chat message. Immutable once created.
type PrivateMessage struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// PrivateChat pairs two users for private messaging. Rows are created
// lazily on first send and always store the smaller id as User1ID, so at
// most one row exists per unordered pair.
type PrivateChat struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

// ConnectionRequest is owned by the social layer; the chat layer only reads
// it to authorize private sessions.
type ConnectionRequest struct {
	ID         int64            `json:"id"`
	FromUserID int64            `json:"from_user_id"`
	ToUserID   int64            `json:"to_user_id"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}
