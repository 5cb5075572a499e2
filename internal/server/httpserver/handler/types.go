package handler

import (
	"encoding/json"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics and the event stream).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// CreateSessionResponse is the response body for POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SaveSnapshotRequest is the request body for PUT /sessions/{id}/snapshot.
type SaveSnapshotRequest struct {
	Data json.RawMessage `json:"data"`
}

// PatchSnapshotRequest is the request body for PATCH /sessions/{id}/snapshot.
type PatchSnapshotRequest struct {
	Step string          `json:"step"`
	Data json.RawMessage `json:"data"`
}

// SnapshotResponse is the response body for GET /sessions/{id}/snapshot.
type SnapshotResponse struct {
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	SavedAt   time.Time       `json:"saved_at"`
}

// StateResponse reports an auto-save controller state.
type StateResponse struct {
	SessionID  string            `json:"session_id"`
	Status     domain.SaveStatus `json:"status"`
	LastSaved  *time.Time        `json:"last_saved,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	HasPending bool              `json:"has_pending"`
	Generation uint64            `json:"generation"`
}

// SaveResponse is the response body for save, patch and retry.
type SaveResponse struct {
	StateResponse

	SavedAt    *time.Time `json:"saved_at,omitempty"`
	LocalError string     `json:"local_error,omitempty"`
	Superseded bool       `json:"superseded,omitempty"`
	NoOp       bool       `json:"noop,omitempty"`

	// Set by PATCH only.
	Progress *float64 `json:"progress,omitempty"`
	NextStep string   `json:"next_step,omitempty"`
}

// ListSessionsResponse is the response body for GET /sessions.
type ListSessionsResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

// ChangeEvent is the data of one "change" event on the event stream.
type ChangeEvent struct {
	SessionID string     `json:"session_id"`
	Found     bool       `json:"found"`
	Value     any        `json:"value"`
	SavedAt   *time.Time `json:"saved_at,omitempty"`
}

func stateToResponse(st service.State) StateResponse {
	resp := StateResponse{
		SessionID:  st.SessionID,
		Status:     st.Status,
		HasPending: st.HasPending,
		Generation: st.Generation,
	}
	if !st.LastSaved.IsZero() {
		t := st.LastSaved
		resp.LastSaved = &t
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
		resp.ErrorCode = domain.GetErrorCode(st.Err)
	}
	return resp
}

func changeToEvent(c service.Change) ChangeEvent {
	ev := ChangeEvent{
		SessionID: c.SessionID,
		Found:     c.Found,
		Value:     c.Value,
	}
	if !c.SavedAt.IsZero() {
		t := c.SavedAt
		ev.SavedAt = &t
	}
	return ev
}
