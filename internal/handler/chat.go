package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/luminachat/server-go/internal/errors"

	"github.com/luminachat/server-go/internal/middleware"
	"github.com/luminachat/server-go/internal/model"
	"github.com/luminachat/server-go/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat streams one assistant turn over SSE. Errors before the first
// byte go out as a regular JSON error response; once the stream is
// open, failures become an error event on the stream, since the status
// line is already gone.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		Messages          []model.IncomingMessage `json:"messages"`
		SystemInstruction string                  `json:"systemInstruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming unsupported"))
		return
	}

	streaming := false
	emit := func(ev service.StreamEvent) error {
		if !streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	modelName := r.URL.Query().Get("model")
	err := h.chatService.StreamTurn(r.Context(), user.ID, modelName, req.Messages, req.SystemInstruction, emit)
	if err != nil {
		if !streaming {
			writeError(w, err)
			return
		}
		log.Error().Err(err).Str("userId", user.ID).Msg("chat stream failed mid-flight")
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			appErr = apperrors.Internal("Stream failed")
		}
		_ = emit(service.StreamEvent{Type: "error", Error: appErr.Message})
	}
}

func (h *ChatHandler) GetSystemInstruction(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	si, err := h.chatService.GetSystemInstruction(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	content := ""
	if si != nil {
		content = si.Content
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (h *ChatHandler) SetSystemInstruction(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	si, err := h.chatService.SetSystemInstruction(r.Context(), user.ID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, si)
}
