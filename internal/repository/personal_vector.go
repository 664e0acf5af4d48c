package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type PersonalVectorRepository interface {
	FindByUserID(ctx context.Context, userID string) ([]model.PersonalVector, error)
	Create(ctx context.Context, params model.CreatePersonalVectorParams) (*model.PersonalVector, error)
	// UpdateContent replaces content and embedding for a row the user
	// owns. Missing or foreign rows come back nil.
	UpdateContent(ctx context.Context, userID, id, content string, embedding model.Vector) (*model.PersonalVector, error)
	Match(ctx context.Context, userID string, query model.Vector, threshold float64, count int) ([]model.MatchedVector, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

type personalVectorRepo struct {
	db *sqlx.DB
}

func NewPersonalVectorRepository(db *sqlx.DB) PersonalVectorRepository {
	return &personalVectorRepo{db: db}
}

func (r *personalVectorRepo) FindByUserID(ctx context.Context, userID string) ([]model.PersonalVector, error) {
	var vectors []model.PersonalVector
	err := r.db.SelectContext(ctx, &vectors, `
		SELECT id, user_id, content, metadata, created_at
		FROM user_vectors
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	return vectors, err
}

func (r *personalVectorRepo) Create(ctx context.Context, params model.CreatePersonalVectorParams) (*model.PersonalVector, error) {
	var vec model.PersonalVector
	metadata := params.Metadata
	if metadata == nil {
		metadata = []byte(`{}`)
	}
	err := r.db.GetContext(ctx, &vec, `
		INSERT INTO user_vectors (user_id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.UserID, params.Content, params.Embedding, metadata)
	if err != nil {
		return nil, err
	}
	return &vec, nil
}

func (r *personalVectorRepo) UpdateContent(ctx context.Context, userID, id, content string, embedding model.Vector) (*model.PersonalVector, error) {
	var vec model.PersonalVector
	err := r.db.GetContext(ctx, &vec, `
		UPDATE user_vectors SET
			content = $3,
			embedding = $4
		WHERE user_id = $1 AND id = $2
		RETURNING *
	`, userID, id, content, embedding)
	return HandleNotFound(&vec, err)
}

func (r *personalVectorRepo) Match(ctx context.Context, userID string, query model.Vector, threshold float64, count int) ([]model.MatchedVector, error) {
	var matches []model.MatchedVector
	err := r.db.SelectContext(ctx, &matches, `
		SELECT *, 1 - (embedding <=> $2::vector) AS similarity
		FROM user_vectors
		WHERE user_id = $1
		AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4
	`, userID, query, threshold, count)
	if matches == nil {
		matches = []model.MatchedVector{}
	}
	return matches, err
}

func (r *personalVectorRepo) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_vectors WHERE user_id = $1 AND id = $2
	`, userID, id)
	return err
}

func (r *personalVectorRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM user_vectors WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
