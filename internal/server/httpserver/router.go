package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Registry owns the auto-save controllers.
	Registry *service.Registry

	// Store is read by snapshot queries and event streams.
	Store handler.SnapshotStore

	// Ready backs GET /ready; nil always reports ready.
	Ready func(ctx context.Context) error

	// MetricsHandler serves GET /metrics; nil disables the route.
	MetricsHandler http.Handler

	// Metrics records request and observer metrics; may be nil.
	Metrics interface {
		RequestRecorder
		service.Recorder
	}

	Logger *slog.Logger

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = no CORS headers).
	CORSAllowedOrigins []string

	// RateLimiter limits requests per client IP; nil disables limiting.
	RateLimiter *RateLimiter

	// ObserverPoll is the poll interval of event stream observers.
	ObserverPoll time.Duration

	// MaxBodyBytes caps snapshot request bodies.
	MaxBodyBytes int64

	// StreamsDone ends open event streams when closed.
	StreamsDone <-chan struct{}
}

// NewRouter creates the HTTP handler with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	opts := []handler.Option{
		handler.WithReadiness(cfg.Ready),
		handler.WithObserverPoll(cfg.ObserverPoll),
		handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
		handler.WithStreamsDone(cfg.StreamsDone),
	}
	if cfg.MetricsHandler != nil {
		opts = append(opts, handler.WithMetricsHandler(cfg.MetricsHandler))
	}
	var requests RequestRecorder
	if cfg.Metrics != nil {
		opts = append(opts, handler.WithObserverMetrics(cfg.Metrics))
		requests = cfg.Metrics
	}
	h := handler.New(cfg.Registry, cfg.Store, log, opts...)

	// Order: Recover -> RequestID -> Logging -> RateLimit -> CORS -> Handler
	middlewares := []Middleware{
		Recover(),
		RequestID(log),
		Logging(requests),
	}
	if cfg.RateLimiter != nil {
		middlewares = append(middlewares, RateLimit(cfg.RateLimiter))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		middlewares = append(middlewares, CORS(cfg.CORSAllowedOrigins))
	}
	return Chain(h, middlewares...)
}
