package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// SnapshotStore is the snapshot store the handlers read and observe.
type SnapshotStore interface {
	service.SnapshotSource
	List(ctx context.Context) ([]string, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithReadiness sets the check behind GET /ready.
func WithReadiness(check func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.ready = check
	}
}

// WithMetricsHandler serves GET /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithObserverPoll sets the poll interval of event stream observers.
func WithObserverPoll(d time.Duration) Option {
	return func(h *Handler) {
		h.observerPoll = d
	}
}

// WithObserverMetrics sets the recorder handed to event stream observers.
func WithObserverMetrics(r service.Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithStreamsDone ends open event streams when done is closed.
func WithStreamsDone(done <-chan struct{}) Option {
	return func(h *Handler) {
		h.streamsDone = done
	}
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	registry *service.Registry
	store    SnapshotStore
	logger   *slog.Logger
	mux      *http.ServeMux

	ready        func(ctx context.Context) error
	metrics      http.Handler
	recorder     service.Recorder
	observerPoll time.Duration
	maxBody      int64
	heartbeat    time.Duration
	streamsDone  <-chan struct{}
}

// New creates a new Handler over the controller registry and snapshot store.
func New(registry *service.Registry, store SnapshotStore, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		registry:  registry,
		store:     store,
		logger:    logger,
		mux:       http.NewServeMux(),
		maxBody:   DefaultMaxBodyBytes,
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	// Snapshot endpoints
	h.mux.HandleFunc("GET /sessions", h.handleListSessions)
	h.mux.HandleFunc("POST /sessions", h.handleCreateSession)
	h.mux.HandleFunc("GET /sessions/{id}/snapshot", h.handleGetSnapshot)
	h.mux.HandleFunc("PUT /sessions/{id}/snapshot", h.handleSaveSnapshot)
	h.mux.HandleFunc("PATCH /sessions/{id}/snapshot", h.handlePatchSnapshot)
	h.mux.HandleFunc("DELETE /sessions/{id}/snapshot", h.handleClearSnapshot)
	h.mux.HandleFunc("POST /sessions/{id}/snapshot/retry", h.handleRetry)
	h.mux.HandleFunc("GET /sessions/{id}/status", h.handleStatus)

	// Change stream
	h.mux.HandleFunc("GET /sessions/{id}/events", h.handleEvents)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.L(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID extracts the request ID set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		message := de.Message
		if de.Details != "" {
			message += ": " + de.Details
		}
		h.writeError(w, r, errorCodeToHTTPStatus(de.Code), de.Code, message, nil)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case code == domain.ErrStorageQuotaExceeded.Code:
		return http.StatusInsufficientStorage
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "ONB-STOR-5"), strings.HasPrefix(code, "ONB-REMT-5"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
