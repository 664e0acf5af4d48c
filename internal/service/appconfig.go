package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	apperrors "github.com/luminachat/server-go/internal/errors"
	"github.com/luminachat/server-go/internal/repository"
)

// ChatModel is one selectable entry in the client's model picker.
type ChatModel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
}

const (
	ConfigKeyChatModels     = "chat_models"
	ConfigKeyDefaultChat    = "default_chat_model"
	ConfigKeySummaryModel   = "memory_summary_model"
	ConfigKeyEmbeddingModel = "memory_embedding_model"
	ConfigKeyImageGenModel  = "image_gen_model"
	ConfigKeyMatchThreshold = "memory_match_threshold"
	ConfigKeyMatchCount     = "memory_match_count"
)

// Defaults keep every read total: a missing row, a missing table, or a
// down database all resolve to these values.
var defaultConfigs = map[string]json.RawMessage{
	ConfigKeyChatModels: json.RawMessage(`[
		{"id": "gemini-3.1-pro-preview", "label": "3.1 Pro", "group": "Gemini 3.x"},
		{"id": "gemini-3-pro-preview", "label": "3.0 Pro", "group": "Gemini 3.x"},
		{"id": "gemini-3-flash-preview", "label": "3.0 Flash", "group": "Gemini 3.x"},
		{"id": "gemini-2.5-pro", "label": "2.5 Pro", "group": "Gemini 2.5"},
		{"id": "gemini-2.5-flash", "label": "2.5 Flash", "group": "Gemini 2.5"},
		{"id": "gemini-2.5-flash-lite", "label": "2.5 Flash Lite", "group": "Gemini 2.5"},
		{"id": "gemini-2.0-flash", "label": "2.0 Flash", "group": "Gemini 2.0"},
		{"id": "gemini-2.0-flash-lite", "label": "2.0 Flash Lite", "group": "Gemini 2.0"}
	]`),
	ConfigKeyDefaultChat:    json.RawMessage(`"gemini-3-flash-preview"`),
	ConfigKeySummaryModel:   json.RawMessage(`"gemini-3-flash-preview"`),
	ConfigKeyEmbeddingModel: json.RawMessage(`"gemini-embedding-001"`),
	ConfigKeyImageGenModel:  json.RawMessage(`"gemini-2.5-flash-image"`),
	ConfigKeyMatchThreshold: json.RawMessage(`0.45`),
	ConfigKeyMatchCount:     json.RawMessage(`3`),
}

// ConfigProvider reads tunable settings from the app_config table and
// falls back to compiled-in defaults on any miss or error.
type ConfigProvider struct {
	repo repository.AppConfigRepository
}

func NewConfigProvider(repo repository.AppConfigRepository) *ConfigProvider {
	return &ConfigProvider{repo: repo}
}

func (p *ConfigProvider) getRaw(ctx context.Context, key string) json.RawMessage {
	entry, err := p.repo.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("config read failed, using default")
		return defaultConfigs[key]
	}
	if entry == nil || len(entry.Value) == 0 {
		return defaultConfigs[key]
	}
	return entry.Value
}

func (p *ConfigProvider) GetString(ctx context.Context, key string) string {
	raw := p.getRaw(ctx, key)
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		if err := json.Unmarshal(defaultConfigs[key], &s); err != nil {
			return ""
		}
	}
	return s
}

func (p *ConfigProvider) GetFloat(ctx context.Context, key string) float64 {
	raw := p.getRaw(ctx, key)
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		_ = json.Unmarshal(defaultConfigs[key], &f)
	}
	return f
}

func (p *ConfigProvider) GetInt(ctx context.Context, key string) int {
	raw := p.getRaw(ctx, key)
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		_ = json.Unmarshal(defaultConfigs[key], &n)
	}
	return n
}

func (p *ConfigProvider) GetChatModels(ctx context.Context) []ChatModel {
	raw := p.getRaw(ctx, ConfigKeyChatModels)
	var models []ChatModel
	if err := json.Unmarshal(raw, &models); err != nil || len(models) == 0 {
		_ = json.Unmarshal(defaultConfigs[ConfigKeyChatModels], &models)
	}
	return models
}

// GetAll overlays stored entries on top of the defaults so the admin UI
// always sees the full key set.
func (p *ConfigProvider) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(defaultConfigs))
	for k, v := range defaultConfigs {
		result[k] = v
	}

	entries, err := p.repo.GetAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("config read-all failed, returning defaults")
		return result, nil
	}
	for _, entry := range entries {
		result[entry.Key] = entry.Value
	}
	return result, nil
}

func (p *ConfigProvider) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return apperrors.MissingRequired("key")
	}
	if !json.Valid(value) {
		return apperrors.InvalidInput("value", "must be valid JSON")
	}
	if err := p.repo.Set(ctx, key, value); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("key", key).Msg("config updated")
	return nil
}
