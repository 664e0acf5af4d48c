package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/token"
)

const (
	ActivationTokenHeader   = "X-Activation-Token"
	DeviceFingerprintHeader = "X-Device-Fingerprint"
)

type contextKey string

const (
	UserContextKey   contextKey = "user"
	DeviceContextKey contextKey = "device"
)

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

func GetDevice(ctx context.Context) *model.DeviceBinding {
	if device, ok := ctx.Value(DeviceContextKey).(*model.DeviceBinding); ok {
		return device
	}
	return nil
}

// DeviceAuthMiddleware gates every user-facing endpoint. The signed
// credential proves (fingerprint, user) were bound at activation; the
// database lookups enforce current state, so disabling a user or
// blocking a device takes effect on their next request.
type DeviceAuthMiddleware struct {
	issuer     *token.Issuer
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
}

func NewDeviceAuthMiddleware(
	issuer *token.Issuer,
	userRepo repository.UserRepository,
	deviceRepo repository.DeviceRepository,
) *DeviceAuthMiddleware {
	return &DeviceAuthMiddleware{
		issuer:     issuer,
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
	}
}

func (m *DeviceAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get(ActivationTokenHeader)
		fingerprint := r.Header.Get(DeviceFingerprintHeader)

		if tokenString == "" || fingerprint == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication credentials",
			})
			return
		}

		userID, err := m.issuer.Verify(tokenString, fingerprint)
		if err != nil {
			log.Warn().Err(err).Msg("device auth: token verification failed")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid session",
			})
			return
		}

		user, err := m.userRepo.FindByID(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Msg("device auth: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}
		if user == nil || !user.IsActive {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid session",
			})
			return
		}

		device, err := m.deviceRepo.FindByUserAndFingerprint(r.Context(), userID, fingerprint)
		if err != nil {
			log.Error().Err(err).Msg("device auth: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}
		if device == nil || !device.IsActive {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid session",
			})
			return
		}

		// Best effort; a stale last_active never blocks a request.
		if err := m.deviceRepo.TouchLastActive(r.Context(), device.ID); err != nil {
			log.Warn().Err(err).Str("deviceId", device.ID).Msg("device auth: touch last_active failed")
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, UserContextKey, user)
		ctx = context.WithValue(ctx, DeviceContextKey, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
