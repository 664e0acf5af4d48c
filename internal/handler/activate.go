package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/luminachat/server-go/internal/errors"

	"github.com/luminachat/server-go/internal/audit"
	"github.com/luminachat/server-go/internal/service"
)

type ActivateHandler struct {
	activationService *service.ActivationService
}

func NewActivateHandler(activationService *service.ActivationService) *ActivateHandler {
	return &ActivateHandler{activationService: activationService}
}

// Activate exchanges {code, device_fingerprint} for a session
// credential. All policy denials surface as 403 with a machine-readable
// code; the client keys its messaging off that code.
func (h *ActivateHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code              string `json:"code"`
		DeviceFingerprint string `json:"device_fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.activationService.Activate(r.Context(), req.Code, req.DeviceFingerprint)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventActivationFailure,
			Details: map[string]interface{}{"code": string(apperrors.GetCode(err))},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventActivationSuccess,
		UserID: result.User.ID,
	})
	writeJSON(w, http.StatusOK, result)
}
