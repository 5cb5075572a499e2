// Package remote implements the remote persistence collaborator backed by Redis.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/infra/tlsroots"
)

// Defaults.
const (
	DefaultKeyPrefix  = "onboarding:session:"
	DefaultTimeout    = 3 * time.Second
	DefaultMaxRetries = 2
	DefaultBackoff    = 200 * time.Millisecond
)

// Config configures a RedisSaver.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// KeyPrefix prefixes every stored key.
	KeyPrefix string

	// TTL expires remote copies; 0 keeps them forever.
	TTL time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration

	// CAFile adds a trusted CA for rediss:// connections.
	CAFile string
}

// DefaultConfig returns the default remote configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		KeyPrefix:  DefaultKeyPrefix,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
	}
}

// RedisSaver mirrors snapshot data to Redis.
type RedisSaver struct {
	cfg    Config
	client *redis.Client
	logger *slog.Logger
}

// NewRedisSaver parses cfg.URL and creates a client. No connection is made
// until the first command.
func NewRedisSaver(cfg Config, logger *slog.Logger) (*RedisSaver, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote: redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse redis url: %w", err)
	}
	// Retries are ours.
	opts.MaxRetries = -1

	if cfg.CAFile != "" {
		if opts.TLSConfig == nil {
			return nil, errors.New("remote: ca file requires a rediss:// url")
		}
		tlsCfg, err := tlsroots.ClientConfigWithCA(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		tlsCfg.ServerName = opts.TLSConfig.ServerName
		opts.TLSConfig = tlsCfg
	}

	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisSaver{
		cfg:    cfg,
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Key returns the remote key for a session.
func (s *RedisSaver) Key(sessionID string) string {
	return s.cfg.KeyPrefix + sessionID
}

// SaveSnapshot stores data for sessionID, retrying with exponential backoff.
// All failures are reported as ErrRemoteSaveFailed.
func (s *RedisSaver) SaveSnapshot(ctx context.Context, sessionID string, data json.RawMessage) error {
	key := s.Key(sessionID)
	backoff := s.cfg.Backoff

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying remote save",
				"session_id", sessionID,
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return domain.ErrRemoteSaveFailed.WithCause(ctx.Err())
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		lastErr = s.client.Set(attemptCtx, key, []byte(data), s.cfg.TTL).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return domain.ErrRemoteSaveFailed.WithCause(lastErr)
}

// LoadSnapshot returns the remote copy for sessionID; found is false when
// there is none.
func (s *RedisSaver) LoadSnapshot(ctx context.Context, sessionID string) (data json.RawMessage, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	b, err := s.client.Get(ctx, s.Key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, domain.ErrRemoteSaveFailed.WithCause(err)
	}
	return json.RawMessage(b), true, nil
}

// Delete removes the remote copy.
func (s *RedisSaver) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Del(ctx, s.Key(sessionID)).Err()
}

// Ping checks connectivity.
func (s *RedisSaver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (s *RedisSaver) Close() error {
	return s.client.Close()
}
