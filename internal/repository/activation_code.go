package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type ActivationCodeRepository interface {
	FindByCode(ctx context.Context, code string) (*model.ActivationCode, error)
	FindByUserID(ctx context.Context, userID string) ([]model.ActivationCode, error)
	Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	// TryIncrementUsage atomically increments usage_count if and only if
	// it is still below max_uses. Returns false when the quota is
	// already exhausted. Concurrent first-time activations race on this
	// single conditional UPDATE, so the quota can never overshoot.
	TryIncrementUsage(ctx context.Context, id string) (bool, error)
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sqlx.Tx) ActivationCodeRepository
}

type activationCodeDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type activationCodeRepo struct {
	db activationCodeDB
}

func NewActivationCodeRepository(db *sqlx.DB) ActivationCodeRepository {
	return &activationCodeRepo{db: db}
}

func (r *activationCodeRepo) WithTx(tx *sqlx.Tx) ActivationCodeRepository {
	return &activationCodeRepo{db: tx}
}

func (r *activationCodeRepo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		SELECT * FROM activation_codes WHERE code = $1
	`, code)
	return HandleNotFound(&ac, err)
}

func (r *activationCodeRepo) FindByUserID(ctx context.Context, userID string) ([]model.ActivationCode, error) {
	var codes []model.ActivationCode
	err := r.db.SelectContext(ctx, &codes, `
		SELECT * FROM activation_codes
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	return codes, err
}

func (r *activationCodeRepo) Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	err := r.db.GetContext(ctx, &ac, `
		INSERT INTO activation_codes (code, user_id, max_uses)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.Code, params.UserID, params.MaxUses)
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

func (r *activationCodeRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE activation_codes SET is_active = $2 WHERE id = $1
	`, id, active)
	return err
}

func (r *activationCodeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM activation_codes WHERE id = $1`, id)
	return err
}

func (r *activationCodeRepo) TryIncrementUsage(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE activation_codes SET
			usage_count = usage_count + 1
		WHERE id = $1 AND usage_count < max_uses
	`, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
