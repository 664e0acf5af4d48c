package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type MemoryChunkRepository interface {
	FindByID(ctx context.Context, id string) (*model.MemoryChunk, error)
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.MemoryChunk, error)
	Create(ctx context.Context, params model.CreateMemoryChunkParams) (*model.MemoryChunk, error)
	// Match runs a cosine-similarity search scoped to one user. Results
	// are ranked by similarity descending, filtered to >= threshold and
	// capped at count. No match is an empty slice, not an error.
	Match(ctx context.Context, userID string, query model.Vector, threshold float64, count int) ([]model.MatchedChunk, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

type memoryChunkRepo struct {
	db *sqlx.DB
}

func NewMemoryChunkRepository(db *sqlx.DB) MemoryChunkRepository {
	return &memoryChunkRepo{db: db}
}

func (r *memoryChunkRepo) FindByID(ctx context.Context, id string) (*model.MemoryChunk, error) {
	var chunk model.MemoryChunk
	err := r.db.GetContext(ctx, &chunk, `
		SELECT * FROM memories_tier1 WHERE id = $1
	`, id)
	return HandleNotFound(&chunk, err)
}

func (r *memoryChunkRepo) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.MemoryChunk, error) {
	var chunks []model.MemoryChunk
	err := r.db.SelectContext(ctx, &chunks, `
		SELECT * FROM memories_tier1
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return chunks, err
}

func (r *memoryChunkRepo) Create(ctx context.Context, params model.CreateMemoryChunkParams) (*model.MemoryChunk, error) {
	var chunk model.MemoryChunk
	err := r.db.GetContext(ctx, &chunk, `
		INSERT INTO memories_tier1 (user_id, session_id, summary_text, embedding, start_message_id, end_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.UserID, params.SessionID, params.SummaryText, params.Embedding,
		params.StartMessageID, params.EndMessageID)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (r *memoryChunkRepo) Match(ctx context.Context, userID string, query model.Vector, threshold float64, count int) ([]model.MatchedChunk, error) {
	var matches []model.MatchedChunk
	err := r.db.SelectContext(ctx, &matches, `
		SELECT *, 1 - (embedding <=> $2::vector) AS similarity
		FROM memories_tier1
		WHERE user_id = $1
		AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4
	`, userID, query, threshold, count)
	if matches == nil {
		matches = []model.MatchedChunk{}
	}
	return matches, err
}

func (r *memoryChunkRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM memories_tier1 WHERE user_id = $1 AND id = $2
	`, userID, id)
	return err
}

func (r *memoryChunkRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM memories_tier1 WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
