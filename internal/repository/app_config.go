package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/luminachat/server-go/internal/model"
)

type AppConfigRepository interface {
	Get(ctx context.Context, key string) (*model.ConfigEntry, error)
	GetAll(ctx context.Context) ([]model.ConfigEntry, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

type appConfigRepo struct {
	db *sqlx.DB
}

func NewAppConfigRepository(db *sqlx.DB) AppConfigRepository {
	return &appConfigRepo{db: db}
}

func (r *appConfigRepo) Get(ctx context.Context, key string) (*model.ConfigEntry, error) {
	var entry model.ConfigEntry
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM app_config WHERE key = $1
	`, key)
	return HandleNotFound(&entry, err)
}

func (r *appConfigRepo) GetAll(ctx context.Context) ([]model.ConfigEntry, error) {
	var entries []model.ConfigEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM app_config ORDER BY key
	`)
	return entries, err
}

func (r *appConfigRepo) Set(ctx context.Context, key string, value json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3
	`, key, value, time.Now())
	return err
}
