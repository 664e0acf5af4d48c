package handler

import (
	"net/http"

	"github.com/luminachat/server-go/internal/service"
)

type ConfigHandler struct {
	config *service.ConfigProvider
}

func NewConfigHandler(config *service.ConfigProvider) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// GetConfig serves the model picker: the selectable chat models and the
// current default.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":       h.config.GetChatModels(r.Context()),
		"defaultModel": h.config.GetString(r.Context(), service.ConfigKeyDefaultChat),
	})
}
