package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type DeviceRepository interface {
	FindByCodeAndFingerprint(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error)
	FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.DeviceBinding, error)
	FindByUserID(ctx context.Context, userID string) ([]model.DeviceBinding, error)
	Create(ctx context.Context, params model.CreateDeviceBindingParams) (*model.DeviceBinding, error)
	TouchLastActive(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	CountActiveByCodeID(ctx context.Context, codeID string) (int, error)
	WithTx(tx *sqlx.Tx) DeviceRepository
}

type deviceDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type deviceRepo struct {
	db deviceDB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) WithTx(tx *sqlx.Tx) DeviceRepository {
	return &deviceRepo{db: tx}
}

func (r *deviceRepo) FindByCodeAndFingerprint(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error) {
	var binding model.DeviceBinding
	err := r.db.GetContext(ctx, &binding, `
		SELECT * FROM user_devices
		WHERE activation_code_id = $1 AND device_fingerprint = $2
	`, codeID, fingerprint)
	return HandleNotFound(&binding, err)
}

func (r *deviceRepo) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error) {
	var binding model.DeviceBinding
	err := r.db.GetContext(ctx, &binding, `
		SELECT * FROM user_devices
		WHERE user_id = $1 AND device_fingerprint = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, fingerprint)
	return HandleNotFound(&binding, err)
}

func (r *deviceRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*model.DeviceBinding, error) {
	var binding model.DeviceBinding
	err := r.db.GetContext(ctx, &binding, `
		SELECT * FROM user_devices
		WHERE device_fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, fingerprint)
	return HandleNotFound(&binding, err)
}

func (r *deviceRepo) FindByUserID(ctx context.Context, userID string) ([]model.DeviceBinding, error) {
	var bindings []model.DeviceBinding
	err := r.db.SelectContext(ctx, &bindings, `
		SELECT * FROM user_devices
		WHERE user_id = $1
		ORDER BY last_active_at DESC
	`, userID)
	return bindings, err
}

func (r *deviceRepo) Create(ctx context.Context, params model.CreateDeviceBindingParams) (*model.DeviceBinding, error) {
	var binding model.DeviceBinding
	err := r.db.GetContext(ctx, &binding, `
		INSERT INTO user_devices (user_id, activation_code_id, device_fingerprint)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.UserID, params.ActivationCodeID, params.Fingerprint)
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

func (r *deviceRepo) TouchLastActive(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_devices SET last_active_at = $2 WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *deviceRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_devices SET is_active = $2 WHERE id = $1
	`, id, active)
	return err
}

func (r *deviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_devices WHERE id = $1`, id)
	return err
}

func (r *deviceRepo) CountActiveByCodeID(ctx context.Context, codeID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM user_devices
		WHERE activation_code_id = $1 AND is_active = TRUE
	`, codeID)
	return count, err
}
