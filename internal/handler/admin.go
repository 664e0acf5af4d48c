package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/luminachat/server-go/internal/errors"

	"github.com/luminachat/server-go/internal/audit"
	"github.com/luminachat/server-go/internal/middleware"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/service"
)

type AdminHandler struct {
	adminService      *service.AdminService
	sessionMiddleware func(http.Handler) http.Handler
	loginRateLimiter  *middleware.LoginRateLimiter
	isProduction      bool
}

func NewAdminHandler(
	adminService *service.AdminService,
	sessionMiddleware func(http.Handler) http.Handler,
	isProduction bool,
) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		sessionMiddleware: sessionMiddleware,
		loginRateLimiter:  middleware.NewLoginRateLimiter(),
		isProduction:      isProduction,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.loginRateLimiter.Handler).Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)
		r.Get("/api/stats", h.Stats)

		// Users
		r.Get("/api/users", h.ListUsers)
		r.Post("/api/users", h.CreateUser)
		r.Patch("/api/users/{id}", h.UpdateUser)
		r.Delete("/api/users/{id}", h.DeleteUser)

		// Activation codes
		r.Get("/api/users/{id}/codes", h.ListCodes)
		r.Post("/api/users/{id}/codes", h.CreateCode)
		r.Patch("/api/codes/{id}", h.ToggleCode)
		r.Delete("/api/codes/{id}", h.DeleteCode)

		// Devices
		r.Get("/api/users/{id}/devices", h.ListDevices)
		r.Patch("/api/devices/{id}", h.ToggleDevice)
		r.Delete("/api/devices/{id}", h.DeleteDevice)

		// Transcripts and memory
		r.Get("/api/chat-logs", h.ListChatLogs)
		r.Get("/api/users/{id}/memories", h.ListMemoryChunks)
		r.Delete("/api/users/{id}/memories/{chunkId}", h.DeleteMemoryChunk)
		r.Delete("/api/users/{id}/memories", h.ClearUserMemory)

		// Runtime configuration
		r.Get("/api/config", h.GetConfig)
		r.Put("/api/config", h.SetConfig)
	})

	return r
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, apperrors.MissingRequired("password"))
		return
	}

	token, err := h.adminService.Login(r.Context(), req.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLoginFailure})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLogin})
	middleware.SetSessionCookie(w, middleware.AdminSessionCookie, token, "/admin", h.isProduction)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.AdminSessionCookie)
	if err == nil && cookie.Value != "" {
		if err := h.adminService.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, err)
			return
		}
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLogout})
	}

	middleware.ClearSessionCookie(w, middleware.AdminSessionCookie, "/admin")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Users

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	users, err := h.adminService.ListUsers(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
		"total": len(users),
	})
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	user, err := h.adminService.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventUserCreate, UserID: user.ID})
	writeJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Username *string `json:"username"`
		IsActive *bool   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	user, err := h.adminService.UpdateUser(r.Context(), id, model.UpdateUserParams{
		Username: req.Username,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.adminService.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventUserDelete, UserID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Activation codes

func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	codes, err := h.adminService.ListCodes(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": codes,
		"total": len(codes),
	})
}

func (h *AdminHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req struct {
		MaxUses int `json:"maxUses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	code, err := h.adminService.CreateCode(r.Context(), userID, req.MaxUses)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeGenerate, UserID: userID})
	writeJSON(w, http.StatusCreated, code)
}

func (h *AdminHandler) ToggleCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		IsActive bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.adminService.SetCodeActive(r.Context(), id, req.IsActive); err != nil {
		writeError(w, err)
		return
	}

	if !req.IsActive {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeDisable})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.adminService.DeleteCode(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Devices

func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	devices, err := h.adminService.ListDevices(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": devices,
		"total": len(devices),
	})
}

func (h *AdminHandler) ToggleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		IsActive bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.adminService.SetDeviceActive(r.Context(), id, req.IsActive); err != nil {
		writeError(w, err)
		return
	}

	eventType := audit.EventDeviceUnblocked
	if !req.IsActive {
		eventType = audit.EventDeviceBlocked
	}
	audit.LogFromRequest(r, audit.Event{Type: eventType, DeviceID: id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.adminService.DeleteDevice(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Transcripts and memory

func (h *AdminHandler) ListChatLogs(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	logs, err := h.adminService.ListChatLogs(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": logs,
		"total": len(logs),
	})
}

func (h *AdminHandler) ListMemoryChunks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	p := ParsePagination(r)

	chunks, err := h.adminService.ListMemoryChunks(r.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": chunks,
		"total": len(chunks),
	})
}

func (h *AdminHandler) DeleteMemoryChunk(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	chunkID := chi.URLParam(r, "chunkId")

	if err := h.adminService.DeleteMemoryChunk(r.Context(), userID, chunkID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ClearUserMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	result, err := h.adminService.ClearUserMemory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventMemoryClear, UserID: userID})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": result,
	})
}

// Runtime configuration

func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := h.adminService.GetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AdminHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.adminService.SetConfig(r.Context(), req.Key, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
