package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type ChatMessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatMessage, error)
	// InsertBatch appends the turns in order and returns the inserted
	// rows, ids included, preserving input order.
	InsertBatch(ctx context.Context, params []model.CreateChatMessageParams) ([]model.ChatMessage, error)
	// FindBySessionWindow returns all turns of one user's session whose
	// created_at falls within [start, end] inclusive, in chronological
	// order. This is the sliding-window expansion query.
	FindBySessionWindow(ctx context.Context, userID, sessionID string, start, end time.Time) ([]model.ChatMessage, error)
	FindRecent(ctx context.Context, limit, offset int) ([]model.ChatMessage, error)
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

type chatMessageRepo struct {
	db *sqlx.DB
}

func NewChatMessageRepository(db *sqlx.DB) ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (r *chatMessageRepo) FindByID(ctx context.Context, id string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM chat_messages WHERE id = $1
	`, id)
	return HandleNotFound(&msg, err)
}

func (r *chatMessageRepo) InsertBatch(ctx context.Context, params []model.CreateChatMessageParams) ([]model.ChatMessage, error) {
	inserted := make([]model.ChatMessage, 0, len(params))
	for _, p := range params {
		var msg model.ChatMessage
		err := r.db.GetContext(ctx, &msg, `
			INSERT INTO chat_messages (user_id, session_id, role, content)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		`, p.UserID, p.SessionID, p.Role, p.Content)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, msg)
	}
	return inserted, nil
}

func (r *chatMessageRepo) FindBySessionWindow(ctx context.Context, userID, sessionID string, start, end time.Time) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		WHERE user_id = $1 AND session_id = $2
		AND created_at >= $3 AND created_at <= $4
		ORDER BY created_at ASC
	`, userID, sessionID, start, end)
	return msgs, err
}

func (r *chatMessageRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return msgs, err
}

func (r *chatMessageRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM chat_messages WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
