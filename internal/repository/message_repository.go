package repository

import (
	"context"
	"fmt"

	"github.com/tutorlink/chat-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepo persists chat messages and returns the canonical row. A write
// must succeed before the message is broadcast.
type MessageRepo interface {
	CreateRoomMessage(ctx context.Context, roomID, senderID int64, text string) (*models.ChatMessage, error)
	CreatePrivateMessage(ctx context.Context, chatID, senderID int64, content string) (*models.PrivateMessage, error)
}

type PostgresMessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepo {
	return &PostgresMessageRepo{pool: pool}
}

func (r *PostgresMessageRepo) CreateRoomMessage(ctx context.Context, roomID, senderID int64, text string) (*models.ChatMessage, error) {
	const query = `
		INSERT INTO chat_messages (room_id, sender_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	msg := &models.ChatMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Text:     text,
	}
	err := r.pool.QueryRow(ctx, query, roomID, senderID, text).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert room message: %w", err)
	}

	return msg, nil
}

func (r *PostgresMessageRepo) CreatePrivateMessage(ctx context.Context, chatID, senderID int64, content string) (*models.PrivateMessage, error) {
	const query = `
		INSERT INTO private_messages (chat_id, sender_id, content, is_read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at`

	msg := &models.PrivateMessage{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}
	err := r.pool.QueryRow(ctx, query, chatID, senderID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert private message: %w", err)
	}

	return msg, nil
}
