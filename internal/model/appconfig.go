package model

import (
	"encoding/json"
	"time"
)

type ConfigEntry struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type SystemInstruction struct {
	UserID    string    `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
