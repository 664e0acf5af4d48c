package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/luminachat/server-go/internal/errors"

	"github.com/luminachat/server-go/internal/middleware"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/service"
)

type MemoryHandler struct {
	memoryService *service.MemoryService
}

func NewMemoryHandler(memoryService *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// SyncMemory runs the session-chunk distillation pipeline.
func (h *MemoryHandler) SyncMemory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		SessionID string                  `json:"session_id"`
		Messages  []model.IncomingMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.memoryService.SyncMemory(r.Context(), user.ID, req.SessionID, req.Messages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": result.Count})
}

// Vectorize distills a whole conversation into one flat personal vector.
func (h *MemoryHandler) Vectorize(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		ConvID   string                  `json:"conv_id"`
		Messages []model.IncomingMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	vec, err := h.memoryService.Vectorize(r.Context(), user.ID, req.ConvID, req.Messages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "memory": vec})
}

func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	memories, err := h.memoryService.ListMemories(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	vec, err := h.memoryService.UpdateMemory(r.Context(), user.ID, req.ID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "memory": vec})
}

// DeleteMemory removes either one personal vector or, with clearAll,
// every vector the user has.
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		ID       string `json:"id"`
		ClearAll bool   `json:"clearAll"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if req.ClearAll {
		count, err := h.memoryService.ClearMemories(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": count})
		return
	}

	if req.ID == "" {
		writeError(w, apperrors.MissingRequired("id"))
		return
	}
	if err := h.memoryService.DeleteMemory(r.Context(), user.ID, req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
