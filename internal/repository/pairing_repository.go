package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PairingRepo resolves the private-chat row for an unordered user pair,
// creating it on first use. Rows always store user1_id < user2_id, so one
// row exists per pair regardless of who messaged first.
type PairingRepo interface {
	GetOrCreate(ctx context.Context, userA, userB int64) (int64, error)
}

type PostgresPairingRepo struct {
	pool *pgxpool.Pool
}

func NewPairingRepo(pool *pgxpool.Pool) PairingRepo {
	return &PostgresPairingRepo{pool: pool}
}

func (r *PostgresPairingRepo) GetOrCreate(ctx context.Context, userA, userB int64) (int64, error) {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}

	const selectQuery = `SELECT id FROM private_chats WHERE user1_id = $1 AND user2_id = $2`

	var id int64
	err := r.pool.QueryRow(ctx, selectQuery, lo, hi).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up private chat: %w", err)
	}

	// Concurrent first sends race here; the unique (user1_id, user2_id)
	// constraint plus DO NOTHING keeps a single row, and the losing side
	// reads the winner's id back.
	const insertQuery = `
		INSERT INTO private_chats (user1_id, user2_id)
		VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id`

	err = r.pool.QueryRow(ctx, insertQuery, lo, hi).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to create private chat: %w", err)
	}

	if err := r.pool.QueryRow(ctx, selectQuery, lo, hi).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to re-read private chat after conflict: %w", err)
	}
	return id, nil
}
