package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorlink/chat-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// MembershipRepo answers the authorization questions the chat layer asks:
// room membership, mutual-connection status, and subject resolution.
type MembershipRepo interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	RoomExists(ctx context.Context, roomID int64) (bool, error)
	IsRoomMember(ctx context.Context, userID, roomID int64) (bool, error)
	IsConnected(ctx context.Context, userA, userB int64) (bool, error)
	SyncRoomMembers(ctx context.Context) error
}

type PostgresMembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) MembershipRepo {
	return &PostgresMembershipRepo{pool: pool}
}

func (r *PostgresMembershipRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

func (r *PostgresMembershipRepo) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM chat_rooms WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, roomID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresMembershipRepo) IsRoomMember(ctx context.Context, userID, roomID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM chat_room_members
			WHERE room_id = $1 AND user_id = $2
		)`

	var member bool
	if err := r.pool.QueryRow(ctx, query, roomID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("failed to check room membership: %w", err)
	}
	return member, nil
}

// IsConnected reports whether an accepted connection request exists between
// the two users. Storage is directional; the relation is symmetric.
func (r *PostgresMembershipRepo) IsConnected(ctx context.Context, userA, userB int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM connection_requests
			WHERE status = 'accepted'
			  AND ((from_user_id = $1 AND to_user_id = $2)
			    OR (from_user_id = $2 AND to_user_id = $1))
		)`

	var connected bool
	if err := r.pool.QueryRow(ctx, query, userA, userB).Scan(&connected); err != nil {
		return false, fmt.Errorf("failed to check connection status: %w", err)
	}
	return connected, nil
}

// SyncRoomMembers reconciles study-group rosters into chat_room_members so
// the membership check stays consistent with the group layer. Run from the
// nightly task.
func (r *PostgresMembershipRepo) SyncRoomMembers(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin membership sync: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertMissing = `
		INSERT INTO chat_room_members (room_id, user_id)
		SELECT g.room_id, g.user_id
		FROM group_members g
		ON CONFLICT (room_id, user_id) DO NOTHING`

	const removeStale = `
		DELETE FROM chat_room_members m
		WHERE NOT EXISTS (
			SELECT 1 FROM group_members g
			WHERE g.room_id = m.room_id AND g.user_id = m.user_id
		)`

	if _, err := tx.Exec(ctx, insertMissing); err != nil {
		return fmt.Errorf("sync add members: %w", err)
	}
	if _, err := tx.Exec(ctx, removeStale); err != nil {
		return fmt.Errorf("sync remove members: %w", err)
	}

	return tx.Commit(ctx)
}
