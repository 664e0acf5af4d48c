package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type SystemInstructionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.SystemInstruction, error)
	Upsert(ctx context.Context, userID, content string) error
}

type systemInstructionRepo struct {
	db *sqlx.DB
}

func NewSystemInstructionRepository(db *sqlx.DB) SystemInstructionRepository {
	return &systemInstructionRepo{db: db}
}

func (r *systemInstructionRepo) FindByUserID(ctx context.Context, userID string) (*model.SystemInstruction, error) {
	var si model.SystemInstruction
	err := r.db.GetContext(ctx, &si, `
		SELECT * FROM system_instructions WHERE user_id = $1
	`, userID)
	return HandleNotFound(&si, err)
}

func (r *systemInstructionRepo) Upsert(ctx context.Context, userID, content string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_instructions (user_id, content, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET content = $2, updated_at = $3
	`, userID, content, time.Now())
	return err
}
