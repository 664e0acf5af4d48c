package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. Streaming chat replies can legitimately run for
// up to two minutes on the slower reasoning models.
const (
	ServerRequestTimeout  = 2 * time.Minute
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Session credential lifetime. Revocation is enforced against live
// user/device state on every request, so the token itself is long-lived.
const ActivationTokenTTL = 10 * 365 * 24 * time.Hour

// Default rate limiting for chat and distillation endpoints
const DefaultRateLimitPerMin = 30

// Retrieval tuning defaults, overridable through app_config. The
// threshold was calibrated against gemini-embedding-001 score spread.
const (
	DefaultMatchThreshold = 0.45
	DefaultMatchCount     = 3
)
