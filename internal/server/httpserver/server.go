package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/onboard-go/internal/infra/tlsroots"
)

// Config configures a Server.
type Config struct {
	Addr string

	// TLSCertFile and TLSKeyFile enable TLS. The pair is reloaded when
	// either file changes.
	TLSCertFile string
	TLSKeyFile  string

	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// RateLimiter, when set, is pruned of idle clients while serving.
	RateLimiter *RateLimiter

	Logger *slog.Logger
}

// Server is the HTTP server. Write timeouts are not set because event
// streams stay open.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	certs    *tlsroots.Watcher

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a new HTTP server.
func New(cfg Config, handler http.Handler) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       cfg.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Listen loads the TLS certificate, if configured, and binds the
// configured address. Serve must follow.
func (s *Server) Listen() error {
	var certs *tlsroots.Watcher
	if s.tlsEnabled() {
		w, err := tlsroots.NewWatcher(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, tlsroots.WithLogger(s.logger))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			s.logger.Warn("certificate hot reload disabled", "error", err)
		}
		certs = w
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if certs != nil {
			certs.Stop()
		}
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.certs = certs
	if certs != nil {
		s.httpServer.TLSConfig = certs.ServerConfig()
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) tlsEnabled() bool {
	return s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Serve accepts connections until Shutdown. It listens first if Listen
// was not called. http.ErrServerClosed is reported as nil.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		ln = s.listener
	}

	if s.cfg.RateLimiter != nil {
		go s.pruneLoop()
	}

	tls := s.tlsEnabled()
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", tls)

	var err error
	if tls {
		// Certificates come from TLSConfig.GetCertificate.
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RegisterOnShutdown registers fn to run when Shutdown starts, before
// waiting for connections. Event streams use it to end.
func (s *Server) RegisterOnShutdown(fn func()) {
	s.httpServer.RegisterOnShutdown(fn)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	certs := s.certs
	s.mu.Unlock()
	if certs != nil {
		certs.Stop()
	}
	return err
}

func (s *Server) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.cfg.RateLimiter.Prune(5 * time.Minute); n > 0 {
				s.logger.Debug("pruned idle rate limit clients", "count", n)
			}
		}
	}
}
