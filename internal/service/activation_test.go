package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminachat/server-go/internal/database"
	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/token"
)

// fakeTxRunner invokes the callback directly; the mock repositories
// ignore the transaction handle.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type toggleCall struct {
	id     string
	active bool
}

type mockCodeRepo struct {
	findByCodeFunc        func(ctx context.Context, code string) (*model.ActivationCode, error)
	tryIncrementUsageFunc func(ctx context.Context, id string) (bool, error)
	createFunc            func(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error)
	incrementCalls        int
	toggles               []toggleCall
	deletedIDs            []string
}

func (m *mockCodeRepo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	if m.findByCodeFunc != nil {
		return m.findByCodeFunc(ctx, code)
	}
	return nil, nil
}

func (m *mockCodeRepo) FindByUserID(ctx context.Context, userID string) ([]model.ActivationCode, error) {
	return nil, nil
}

func (m *mockCodeRepo) Create(ctx context.Context, params model.CreateActivationCodeParams) (*model.ActivationCode, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return &model.ActivationCode{
		ID:       "code-new",
		Code:     params.Code,
		UserID:   params.UserID,
		MaxUses:  params.MaxUses,
		IsActive: true,
	}, nil
}

func (m *mockCodeRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.toggles = append(m.toggles, toggleCall{id: id, active: active})
	return nil
}

func (m *mockCodeRepo) Delete(ctx context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockCodeRepo) TryIncrementUsage(ctx context.Context, id string) (bool, error) {
	m.incrementCalls++
	if m.tryIncrementUsageFunc != nil {
		return m.tryIncrementUsageFunc(ctx, id)
	}
	return true, nil
}

func (m *mockCodeRepo) WithTx(tx *sqlx.Tx) repository.ActivationCodeRepository {
	return m
}

type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
	findAllFunc  func(ctx context.Context, limit, offset int) ([]model.User, error)
	createFunc   func(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	updateFunc   func(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error)
	count        int
	deletedIDs   []string
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindAll(ctx context.Context, limit, offset int) ([]model.User, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return &model.User{ID: "user-new", Username: params.Username, IsActive: true}, nil
}

func (m *mockUserRepo) Update(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, params)
	}
	return nil, nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	return m.count, nil
}

type mockDeviceRepo struct {
	findByCodeAndFingerprintFunc func(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error)
	createFunc                   func(ctx context.Context, params model.CreateDeviceBindingParams) (*model.DeviceBinding, error)
	findByUserIDFunc             func(ctx context.Context, userID string) ([]model.DeviceBinding, error)
	createdParams                []model.CreateDeviceBindingParams
	touchedIDs                   []string
	toggles                      []toggleCall
}

func (m *mockDeviceRepo) FindByCodeAndFingerprint(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error) {
	if m.findByCodeAndFingerprintFunc != nil {
		return m.findByCodeAndFingerprintFunc(ctx, codeID, fingerprint)
	}
	return nil, nil
}

func (m *mockDeviceRepo) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) FindByUserID(ctx context.Context, userID string) ([]model.DeviceBinding, error) {
	if m.findByUserIDFunc != nil {
		return m.findByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockDeviceRepo) Create(ctx context.Context, params model.CreateDeviceBindingParams) (*model.DeviceBinding, error) {
	m.createdParams = append(m.createdParams, params)
	if m.createFunc != nil {
		return m.createFunc(ctx, params)
	}
	return &model.DeviceBinding{
		ID:               "dev-new",
		UserID:           params.UserID,
		ActivationCodeID: params.ActivationCodeID,
		Fingerprint:      params.Fingerprint,
		IsActive:         true,
	}, nil
}

func (m *mockDeviceRepo) TouchLastActive(ctx context.Context, id string) error {
	m.touchedIDs = append(m.touchedIDs, id)
	return nil
}

func (m *mockDeviceRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.toggles = append(m.toggles, toggleCall{id: id, active: active})
	return nil
}

func (m *mockDeviceRepo) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *mockDeviceRepo) CountActiveByCodeID(ctx context.Context, codeID string) (int, error) {
	return 0, nil
}

func (m *mockDeviceRepo) WithTx(tx *sqlx.Tx) repository.DeviceRepository {
	return m
}

func TestActivationService(t *testing.T) {
	issuer := token.NewIssuer("test-secret", time.Hour)

	activeCode := &model.ActivationCode{
		ID:       "code-1",
		Code:     "ALPHAWOLF",
		UserID:   "user-1",
		MaxUses:  2,
		IsActive: true,
	}
	activeUser := &model.User{ID: "user-1", Username: "alice", IsActive: true}

	userRepoFor := func(u *model.User) *mockUserRepo {
		return &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				if u != nil && id == u.ID {
					return u, nil
				}
				return nil, nil
			},
		}
	}
	codeRepoFor := func(ac *model.ActivationCode) *mockCodeRepo {
		return &mockCodeRepo{
			findByCodeFunc: func(ctx context.Context, code string) (*model.ActivationCode, error) {
				if ac != nil && code == ac.Code {
					return ac, nil
				}
				return nil, nil
			},
		}
	}

	t.Run("first activation binds device and issues credential", func(t *testing.T) {
		codeRepo := codeRepoFor(activeCode)
		deviceRepo := &mockDeviceRepo{}

		svc := NewActivationService(fakeTxRunner{}, codeRepo, userRepoFor(activeUser), deviceRepo, issuer)

		result, err := svc.Activate(context.Background(), "alphawolf", "fp-1")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "user-1", result.User.ID)
		assert.Equal(t, 1, codeRepo.incrementCalls)
		require.Len(t, deviceRepo.createdParams, 1)
		assert.Equal(t, "fp-1", deviceRepo.createdParams[0].Fingerprint)

		uid, err := issuer.Verify(result.Token, "fp-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", uid)
	})

	t.Run("re-activation from a bound device consumes no quota", func(t *testing.T) {
		codeRepo := codeRepoFor(activeCode)
		deviceRepo := &mockDeviceRepo{
			findByCodeAndFingerprintFunc: func(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error) {
				return &model.DeviceBinding{ID: "dev-1", UserID: "user-1", Fingerprint: fingerprint, IsActive: true}, nil
			},
		}

		svc := NewActivationService(fakeTxRunner{}, codeRepo, userRepoFor(activeUser), deviceRepo, issuer)

		result, err := svc.Activate(context.Background(), "ALPHAWOLF", "fp-1")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 0, codeRepo.incrementCalls)
		assert.Empty(t, deviceRepo.createdParams)
		assert.Equal(t, []string{"dev-1"}, deviceRepo.touchedIDs)
	})

	t.Run("rejects new device when quota is exhausted", func(t *testing.T) {
		codeRepo := codeRepoFor(activeCode)
		codeRepo.tryIncrementUsageFunc = func(ctx context.Context, id string) (bool, error) {
			return false, nil
		}
		deviceRepo := &mockDeviceRepo{}

		svc := NewActivationService(fakeTxRunner{}, codeRepo, userRepoFor(activeUser), deviceRepo, issuer)

		_, err := svc.Activate(context.Background(), "ALPHAWOLF", "fp-3")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeQuotaExceeded, apperrors.GetCode(err))
		assert.Empty(t, deviceRepo.createdParams)
	})

	t.Run("rejects unknown code", func(t *testing.T) {
		svc := NewActivationService(fakeTxRunner{}, codeRepoFor(nil), userRepoFor(activeUser), &mockDeviceRepo{}, issuer)

		_, err := svc.Activate(context.Background(), "NOPE", "fp-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidCode, apperrors.GetCode(err))
	})

	t.Run("rejects disabled code", func(t *testing.T) {
		disabled := *activeCode
		disabled.IsActive = false

		svc := NewActivationService(fakeTxRunner{}, codeRepoFor(&disabled), userRepoFor(activeUser), &mockDeviceRepo{}, issuer)

		_, err := svc.Activate(context.Background(), "ALPHAWOLF", "fp-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeAccountDisabled, apperrors.GetCode(err))
	})

	t.Run("rejects disabled user", func(t *testing.T) {
		disabledUser := &model.User{ID: "user-1", Username: "alice", IsActive: false}

		svc := NewActivationService(fakeTxRunner{}, codeRepoFor(activeCode), userRepoFor(disabledUser), &mockDeviceRepo{}, issuer)

		_, err := svc.Activate(context.Background(), "ALPHAWOLF", "fp-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeAccountDisabled, apperrors.GetCode(err))
	})

	t.Run("rejects blocked device even when quota remains", func(t *testing.T) {
		codeRepo := codeRepoFor(activeCode)
		deviceRepo := &mockDeviceRepo{
			findByCodeAndFingerprintFunc: func(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error) {
				return &model.DeviceBinding{ID: "dev-1", UserID: "user-1", Fingerprint: fingerprint, IsActive: false}, nil
			},
		}

		svc := NewActivationService(fakeTxRunner{}, codeRepo, userRepoFor(activeUser), deviceRepo, issuer)

		_, err := svc.Activate(context.Background(), "ALPHAWOLF", "fp-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeDeviceBlocked, apperrors.GetCode(err))
		assert.Equal(t, 0, codeRepo.incrementCalls)
	})

	t.Run("rejects missing inputs", func(t *testing.T) {
		svc := NewActivationService(fakeTxRunner{}, codeRepoFor(activeCode), userRepoFor(activeUser), &mockDeviceRepo{}, issuer)

		_, err := svc.Activate(context.Background(), "", "fp-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))

		_, err = svc.Activate(context.Background(), "ALPHAWOLF", "")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})
}
