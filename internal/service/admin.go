package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/repository"
	"github.com/luminachat/server-go/internal/util"
)

const (
	activationCodeLength = 12
	defaultCodeMaxUses   = 3

	// Must stay in step with the admin cookie max-age.
	adminSessionTTL = 24 * time.Hour
)

type AdminStats struct {
	TotalUsers int `json:"totalUsers"`
}

// ClearMemoryResult reports how many rows a per-user memory wipe
// removed from each store.
type ClearMemoryResult struct {
	Chunks  int64 `json:"chunks"`
	Vectors int64 `json:"vectors"`
}

// AdminService backs the operator plane: session login, user and code
// lifecycle, device moderation, transcript and memory inspection, and
// runtime configuration.
type AdminService struct {
	userRepo    repository.UserRepository
	codeRepo    repository.ActivationCodeRepository
	deviceRepo  repository.DeviceRepository
	msgRepo     repository.ChatMessageRepository
	chunkRepo   repository.MemoryChunkRepository
	vectorRepo  repository.PersonalVectorRepository
	sessionRepo repository.AdminSessionRepository
	config      *ConfigProvider

	passwordHash  string
	sessionSecret string
}

func NewAdminService(
	userRepo repository.UserRepository,
	codeRepo repository.ActivationCodeRepository,
	deviceRepo repository.DeviceRepository,
	msgRepo repository.ChatMessageRepository,
	chunkRepo repository.MemoryChunkRepository,
	vectorRepo repository.PersonalVectorRepository,
	sessionRepo repository.AdminSessionRepository,
	config *ConfigProvider,
	passwordHash, sessionSecret string,
) *AdminService {
	return &AdminService{
		userRepo:      userRepo,
		codeRepo:      codeRepo,
		deviceRepo:    deviceRepo,
		msgRepo:       msgRepo,
		chunkRepo:     chunkRepo,
		vectorRepo:    vectorRepo,
		sessionRepo:   sessionRepo,
		config:        config,
		passwordHash:  passwordHash,
		sessionSecret: sessionSecret,
	}
}

// Login checks the operator password and mints a session token. The raw
// token goes to the caller; only its HMAC is stored.
func (s *AdminService) Login(ctx context.Context, password string) (string, error) {
	if s.passwordHash == "" {
		return "", apperrors.Internal("Admin login is not configured")
	}
	if !util.CheckPasswordHash(password, s.passwordHash) {
		return "", apperrors.Unauthorized("Invalid password")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return "", apperrors.Internal("Failed to generate session token").WithCause(err)
	}

	_, err = s.sessionRepo.Create(ctx, model.CreateAdminSessionParams{
		TokenHash: util.HmacSHA256(s.sessionSecret, token),
		ExpiresAt: time.Now().Add(adminSessionTTL),
	})
	if err != nil {
		return "", apperrors.Database(err)
	}

	log.Info().Msg("admin session created")
	return token, nil
}

func (s *AdminService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, util.HmacSHA256(s.sessionSecret, token)); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *AdminService) Stats(ctx context.Context) (*AdminStats, error) {
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &AdminStats{TotalUsers: users}, nil
}

func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	users, err := s.userRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

func (s *AdminService) CreateUser(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.MissingRequired("username")
	}

	user, err := s.userRepo.Create(ctx, model.CreateUserParams{Username: username})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("userId", user.ID).Str("username", user.Username).Msg("user created")
	return user, nil
}

func (s *AdminService) UpdateUser(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error) {
	user, err := s.userRepo.Update(ctx, id, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("user")
	}
	return user, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if user == nil {
		return apperrors.NotFound("user")
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("userId", id).Msg("user deleted")
	return nil
}

func (s *AdminService) ListCodes(ctx context.Context, userID string) ([]model.ActivationCode, error) {
	codes, err := s.codeRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if codes == nil {
		codes = []model.ActivationCode{}
	}
	return codes, nil
}

// CreateCode mints a fresh activation code for the user. maxUses caps
// how many distinct devices the code can ever admit.
func (s *AdminService) CreateCode(ctx context.Context, userID string, maxUses int) (*model.ActivationCode, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("user")
	}

	if maxUses <= 0 {
		maxUses = defaultCodeMaxUses
	}

	code, err := s.codeRepo.Create(ctx, model.CreateActivationCodeParams{
		Code:    util.GenerateActivationCode(activationCodeLength),
		UserID:  userID,
		MaxUses: maxUses,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", userID).
		Str("codeId", code.ID).
		Str("code", util.MaskCode(code.Code)).
		Int("maxUses", maxUses).
		Msg("activation code created")
	return code, nil
}

func (s *AdminService) SetCodeActive(ctx context.Context, id string, active bool) error {
	if err := s.codeRepo.SetActive(ctx, id, active); err != nil {
		return apperrors.Database(err)
	}
	log.Info().Str("codeId", id).Bool("active", active).Msg("activation code toggled")
	return nil
}

func (s *AdminService) DeleteCode(ctx context.Context, id string) error {
	if err := s.codeRepo.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *AdminService) ListDevices(ctx context.Context, userID string) ([]model.DeviceBinding, error) {
	devices, err := s.deviceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if devices == nil {
		devices = []model.DeviceBinding{}
	}
	return devices, nil
}

// SetDeviceActive blocks or unblocks one bound device. Blocking takes
// effect on the device's next request; its credential stays issued but
// stops passing the liveness check.
func (s *AdminService) SetDeviceActive(ctx context.Context, id string, active bool) error {
	if err := s.deviceRepo.SetActive(ctx, id, active); err != nil {
		return apperrors.Database(err)
	}
	log.Info().Str("deviceId", id).Bool("active", active).Msg("device toggled")
	return nil
}

func (s *AdminService) DeleteDevice(ctx context.Context, id string) error {
	if err := s.deviceRepo.Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *AdminService) ListChatLogs(ctx context.Context, limit, offset int) ([]model.ChatMessage, error) {
	logs, err := s.msgRepo.FindRecent(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if logs == nil {
		logs = []model.ChatMessage{}
	}
	return logs, nil
}

func (s *AdminService) ListMemoryChunks(ctx context.Context, userID string, limit, offset int) ([]model.MemoryChunk, error) {
	chunks, err := s.chunkRepo.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if chunks == nil {
		chunks = []model.MemoryChunk{}
	}
	return chunks, nil
}

func (s *AdminService) DeleteMemoryChunk(ctx context.Context, userID, id string) error {
	if err := s.chunkRepo.Delete(ctx, userID, id); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// ClearUserMemory wipes both memory tiers for one user. Raw chat
// transcripts stay; they are operational history, not memory.
func (s *AdminService) ClearUserMemory(ctx context.Context, userID string) (*ClearMemoryResult, error) {
	chunks, err := s.chunkRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	vectors, err := s.vectorRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", userID).
		Int64("chunks", chunks).
		Int64("vectors", vectors).
		Msg("user memory cleared")
	return &ClearMemoryResult{Chunks: chunks, Vectors: vectors}, nil
}

func (s *AdminService) GetConfig(ctx context.Context) (map[string]json.RawMessage, error) {
	return s.config.GetAll(ctx)
}

func (s *AdminService) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	return s.config.Set(ctx, key, value)
}
