package model

import "time"

type ActivationCode struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	UserID     string    `db:"user_id" json:"userId"`
	MaxUses    int       `db:"max_uses" json:"maxUses"`
	UsageCount int       `db:"usage_count" json:"usageCount"`
	IsActive   bool      `db:"is_active" json:"isActive"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type CreateActivationCodeParams struct {
	Code    string
	UserID  string
	MaxUses int
}

// DeviceBinding ties a client fingerprint to the activation code that
// admitted it. The (activation_code_id, device_fingerprint) pair is
// unique; re-presenting the same fingerprint is idempotent.
type DeviceBinding struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	ActivationCodeID string    `db:"activation_code_id" json:"activationCodeId"`
	Fingerprint      string    `db:"device_fingerprint" json:"deviceFingerprint"`
	IsActive         bool      `db:"is_active" json:"isActive"`
	LastActiveAt     time.Time `db:"last_active_at" json:"lastActiveAt"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type CreateDeviceBindingParams struct {
	UserID           string
	ActivationCodeID string
	Fingerprint      string
}
