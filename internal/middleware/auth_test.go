package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/token"
)

type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindAll(ctx context.Context, limit, offset int) ([]model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Update(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	return 0, nil
}

type mockDeviceRepo struct {
	findByUserAndFingerprintFunc func(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error)
	touchedIDs                   []string
}

func (m *mockDeviceRepo) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error) {
	if m.findByUserAndFingerprintFunc != nil {
		return m.findByUserAndFingerprintFunc(ctx, userID, fingerprint)
	}
	return nil, nil
}

func (m *mockDeviceRepo) FindByCodeAndFingerprint(ctx context.Context, codeID, fingerprint string) (*model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) FindByUserID(ctx context.Context, userID string) ([]model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) Create(ctx context.Context, params model.CreateDeviceBindingParams) (*model.DeviceBinding, error) {
	return nil, nil
}

func (m *mockDeviceRepo) TouchLastActive(ctx context.Context, id string) error {
	m.touchedIDs = append(m.touchedIDs, id)
	return nil
}

func (m *mockDeviceRepo) SetActive(ctx context.Context, id string, active bool) error {
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

func TestDeviceAuthMiddleware(t *testing.T) {
	issuer := token.NewIssuer("test-secret", time.Hour)

	activeUser := &model.User{ID: "user-1", Username: "alice", IsActive: true}
	activeDevice := &model.DeviceBinding{
		ID:          "dev-1",
		UserID:      "user-1",
		Fingerprint: "fp-1",
		IsActive:    true,
	}

	validToken, err := issuer.Sign("fp-1", "user-1")
	require.NoError(t, err)

	newHandler := func(userRepo *mockUserRepo, deviceRepo *mockDeviceRepo, inner http.HandlerFunc) http.Handler {
		m := NewDeviceAuthMiddleware(issuer, userRepo, deviceRepo)
		return m.Handler(inner)
	}

	t.Run("allows request with valid token and fingerprint", func(t *testing.T) {
		userRepo := &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				if id == "user-1" {
					return activeUser, nil
				}
				return nil, nil
			},
		}
		deviceRepo := &mockDeviceRepo{
			findByUserAndFingerprintFunc: func(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error) {
				if userID == "user-1" && fingerprint == "fp-1" {
					return activeDevice, nil
				}
				return nil, nil
			},
		}

		handler := newHandler(userRepo, deviceRepo, func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			require.NotNil(t, user)
			assert.Equal(t, "user-1", user.ID)
			device := GetDevice(r.Context())
			require.NotNil(t, device)
			assert.Equal(t, "dev-1", device.ID)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(ActivationTokenHeader, validToken)
		req.Header.Set(DeviceFingerprintHeader, "fp-1")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"dev-1"}, deviceRepo.touchedIDs)
	})

	t.Run("rejects request without credentials", func(t *testing.T) {
		handler := newHandler(&mockUserRepo{}, &mockDeviceRepo{}, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects token presented with the wrong fingerprint", func(t *testing.T) {
		handler := newHandler(&mockUserRepo{}, &mockDeviceRepo{}, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(ActivationTokenHeader, validToken)
		req.Header.Set(DeviceFingerprintHeader, "fp-other")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects disabled user even with valid token", func(t *testing.T) {
		disabled := &model.User{ID: "user-1", Username: "alice", IsActive: false}
		userRepo := &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				return disabled, nil
			},
		}

		handler := newHandler(userRepo, &mockDeviceRepo{}, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(ActivationTokenHeader, validToken)
		req.Header.Set(DeviceFingerprintHeader, "fp-1")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects blocked device even with valid token", func(t *testing.T) {
		blocked := &model.DeviceBinding{ID: "dev-1", UserID: "user-1", Fingerprint: "fp-1", IsActive: false}
		userRepo := &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				return activeUser, nil
			},
		}
		deviceRepo := &mockDeviceRepo{
			findByUserAndFingerprintFunc: func(ctx context.Context, userID, fingerprint string) (*model.DeviceBinding, error) {
				return blocked, nil
			},
		}

		handler := newHandler(userRepo, deviceRepo, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(ActivationTokenHeader, validToken)
		req.Header.Set(DeviceFingerprintHeader, "fp-1")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("returns 500 on database error", func(t *testing.T) {
		userRepo := &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
				return nil, errors.New("database error")
			},
		}

		handler := newHandler(userRepo, &mockDeviceRepo{}, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		})

		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(ActivationTokenHeader, validToken)
		req.Header.Set(DeviceFingerprintHeader, "fp-1")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetUser(t *testing.T) {
	t.Run("returns user from context", func(t *testing.T) {
		user := &model.User{ID: "test-id"}
		ctx := context.WithValue(context.Background(), UserContextKey, user)

		result := GetUser(ctx)

		require.NotNil(t, result)
		assert.Equal(t, "test-id", result.ID)
	})

	t.Run("returns nil when no user in context", func(t *testing.T) {
		assert.Nil(t, GetUser(context.Background()))
	})
}
