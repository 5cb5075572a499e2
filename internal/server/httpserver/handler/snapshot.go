package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
)

// handleListSessions handles GET /sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{Items: ids, Total: len(ids)})
}

// handleCreateSession handles POST /sessions. It only mints an id; nothing
// is stored until the first save.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := domain.NewSessionID()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// handleGetSnapshot handles GET /sessions/{id}/snapshot.
func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	snap, found, err := h.store.Read(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if !found {
		h.handleServiceError(w, r, domain.ErrSnapshotNotFound.WithDetails(sessionID))
		return
	}

	h.writeJSON(w, r, http.StatusOK, SnapshotResponse{
		SessionID: sessionID,
		Data:      snap.Data,
		SavedAt:   snap.SavedAt,
	})
}

// handleSaveSnapshot handles PUT /sessions/{id}/snapshot.
func (h *Handler) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req SaveSnapshotRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("data is required"))
		return
	}

	ctrl, err := h.registry.GetOrCreate(sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeResult(w, r, ctrl, ctrl.Save(r.Context(), req.Data), nil)
}

// handlePatchSnapshot handles PATCH /sessions/{id}/snapshot. The step
// record is merged into the stored onboarding data before saving.
func (h *Handler) handlePatchSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req PatchSnapshotRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	step, err := domain.ParseStep(req.Step)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if len(req.Data) == 0 {
		h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("data is required"))
		return
	}

	// 1. Load the current aggregate, if any
	var data domain.OnboardingData
	snap, found, err := h.store.Read(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if found {
		if err := snap.Decode(&data); err != nil {
			h.handleServiceError(w, r, domain.ErrBadRequest.WithDetails("stored data is not onboarding data").WithCause(err))
			return
		}
	}

	// 2. Merge the step
	if err := data.Merge(step, req.Data); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	// 3. Save through the controller
	ctrl, err := h.registry.GetOrCreate(sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeResult(w, r, ctrl, ctrl.Save(r.Context(), &data), &data)
}

// handleRetry handles POST /sessions/{id}/snapshot/retry.
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	ctrl, found := h.registry.Get(sessionID)
	if !found {
		h.writeJSON(w, r, http.StatusOK, SaveResponse{
			StateResponse: StateResponse{SessionID: sessionID, Status: domain.SaveStatusIdle},
			NoOp:          true,
		})
		return
	}
	h.writeResult(w, r, ctrl, ctrl.Retry(r.Context()), nil)
}

// handleStatus handles GET /sessions/{id}/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	ctrl, found := h.registry.Get(sessionID)
	if !found {
		h.writeJSON(w, r, http.StatusOK, StateResponse{SessionID: sessionID, Status: domain.SaveStatusIdle})
		return
	}
	h.writeJSON(w, r, http.StatusOK, stateToResponse(ctrl.State()))
}

// handleClearSnapshot handles DELETE /sessions/{id}/snapshot.
func (h *Handler) handleClearSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Clear(r.Context(), sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	logger.L(r.Context()).Info("snapshot cleared", "session_id", sessionID)
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"cleared":    true,
	})
}

// ============================================================================
// Helpers
// ============================================================================

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := domain.ValidateSessionID(id); err != nil {
		h.handleServiceError(w, r, err)
		return "", false
	}
	return id, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, domain.ErrBadRequest.Code, "request body too large", nil)
			return false
		}
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body", nil)
		return false
	}
	return true
}

// writeResult maps a controller result onto a response: 200 when saved
// (or nothing to do), 202 when overtaken by a newer save, and the error
// status otherwise.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, ctrl *service.Controller, res service.Result, data *domain.OnboardingData) {
	resp := SaveResponse{
		StateResponse: stateToResponse(ctrl.State()),
		Superseded:    res.Superseded,
		NoOp:          res.NoOp,
	}
	if res.Snapshot != nil {
		t := res.Snapshot.SavedAt
		resp.SavedAt = &t
	}
	if res.LocalErr != nil {
		resp.LocalError = res.LocalErr.Error()
	}
	if data != nil {
		p := data.Progress()
		resp.Progress = &p
		resp.NextStep = string(data.NextStep())
	}

	switch {
	case res.Superseded:
		h.writeJSON(w, r, http.StatusAccepted, resp)
	case res.Err != nil:
		code := domain.GetErrorCode(res.Err)
		if code == "" {
			code = domain.ErrStorageUnavailable.Code
		}
		status := http.StatusServiceUnavailable
		if domain.IsQuotaExceeded(res.Err) {
			status = http.StatusInsufficientStorage
		}
		h.writeError(w, r, status, code, res.Err.Error(), resp)
	default:
		h.writeJSON(w, r, http.StatusOK, resp)
	}
}
