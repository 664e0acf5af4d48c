package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/luminachat/server-go/internal/database"
	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/token"
	"github.com/luminachat/server-go/internal/util"
)

type ActivationResult struct {
	Token string      `json:"activation_token"`
	User  *model.User `json:"user"`
}

// txRunner lets tests substitute the transaction wrapper.
type txRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type ActivationService struct {
	db         txRunner
	codeRepo   repository.ActivationCodeRepository
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
	issuer     *token.Issuer
}

func NewActivationService(
	db txRunner,
	codeRepo repository.ActivationCodeRepository,
	userRepo repository.UserRepository,
	deviceRepo repository.DeviceRepository,
	issuer *token.Issuer,
) *ActivationService {
	return &ActivationService{
		db:         db,
		codeRepo:   codeRepo,
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
		issuer:     issuer,
	}
}

// Activate exchanges an activation code plus a device fingerprint for a
// signed session credential. Re-activating from an already-bound device
// is idempotent and never consumes quota; only a first-time binding
// increments the code's usage count, atomically, so concurrent attempts
// from fresh devices cannot oversubscribe a code.
func (s *ActivationService) Activate(ctx context.Context, code, fingerprint string) (*ActivationResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if !util.IsValidFingerprint(fingerprint) {
		return nil, apperrors.InvalidInput("device_fingerprint", "must be a non-empty opaque identifier")
	}

	normalizedCode := strings.ToUpper(strings.TrimSpace(code))

	ac, err := s.codeRepo.FindByCode(ctx, normalizedCode)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ac == nil {
		log.Warn().Str("code", util.MaskCode(normalizedCode)).Msg("activation attempt with unknown code")
		return nil, apperrors.InvalidCode()
	}
	if !ac.IsActive {
		return nil, apperrors.AccountDisabled()
	}

	user, err := s.userRepo.FindByID(ctx, ac.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !user.IsActive {
		return nil, apperrors.AccountDisabled()
	}

	existing, err := s.deviceRepo.FindByCodeAndFingerprint(ctx, ac.ID, fingerprint)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if existing != nil {
		if !existing.IsActive {
			log.Warn().
				Str("deviceId", existing.ID).
				Str("userId", user.ID).
				Msg("activation attempt from blocked device")
			return nil, apperrors.DeviceBlocked()
		}

		if err := s.deviceRepo.TouchLastActive(ctx, existing.ID); err != nil {
			log.Warn().Err(err).Str("deviceId", existing.ID).Msg("touch last_active failed")
		}

		return s.issueCredential(fingerprint, user, existing.ID, true)
	}

	var device *model.DeviceBinding
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := s.codeRepo.WithTx(tx).TryIncrementUsage(ctx, ac.ID)
		if err != nil {
			return apperrors.Database(err)
		}
		if !ok {
			return apperrors.QuotaExceeded()
		}

		device, err = s.deviceRepo.WithTx(tx).Create(ctx, model.CreateDeviceBindingParams{
			UserID:           user.ID,
			ActivationCodeID: ac.ID,
			Fingerprint:      fingerprint,
		})
		if err != nil {
			return apperrors.Database(err)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Database(err)
	}

	return s.issueCredential(fingerprint, user, device.ID, false)
}

func (s *ActivationService) issueCredential(fingerprint string, user *model.User, deviceID string, rebind bool) (*ActivationResult, error) {
	signed, err := s.issuer.Sign(fingerprint, user.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "sign credential", err)
	}

	log.Info().
		Str("userId", user.ID).
		Str("deviceId", deviceID).
		Bool("rebind", rebind).
		Msg("device activated")

	return &ActivationResult{Token: signed, User: user}, nil
}

// ListDevices returns every binding for a user, newest activity first.
func (s *ActivationService) ListDevices(ctx context.Context, userID string) ([]model.DeviceBinding, error) {
	devices, err := s.deviceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
