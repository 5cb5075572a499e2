package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

// Verify validates the configuration and returns every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyAutosave(&cfg.Autosave),
		verifyRemote(&cfg.Remote),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	h := &cfg.HTTP
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", h.Addr, err))
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http tls file: %w", err))
		}
	}
	if h.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must be positive"))
	}
	if h.RateLimit.Enabled && (h.RateLimit.RPS <= 0 || h.RateLimit.Burst < 1) {
		errs = append(errs, errors.New("server.http.rate_limit needs rps > 0 and burst >= 1"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	var errs []error
	switch strings.ToLower(cfg.Engine) {
	case kv.EngineMemory:
	case kv.EngineFile, kv.EngineBadger:
		if cfg.DataDir == "" && !(cfg.Engine == kv.EngineBadger && cfg.Badger.InMemory) {
			errs = append(errs, fmt.Errorf("storage.data_dir is required for the %s engine", cfg.Engine))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.engine %q must be memory, file or badger", cfg.Engine))
	}
	if cfg.QuotaBytes < 0 {
		errs = append(errs, errors.New("storage.quota_bytes must not be negative"))
	}
	if cfg.UsageWarnRatio < 0 || cfg.UsageWarnRatio > 1 {
		errs = append(errs, errors.New("storage.usage_warn_ratio must be within [0, 1]"))
	}
	if cfg.Engine == kv.EngineBadger {
		if d, err := time.ParseDuration(cfg.Badger.GCInterval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("storage.badger.gc_interval %q is not a positive duration", cfg.Badger.GCInterval))
		}
		if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
			errs = append(errs, errors.New("storage.badger.gc_threshold must be within (0, 1)"))
		}
	}
	return errors.Join(errs...)
}

func verifyAutosave(cfg *AutosaveSection) error {
	if cfg.SavedDisplay <= 0 {
		return errors.New("autosave.saved_display must be positive")
	}
	if cfg.IdleDispose > 0 && cfg.SweepInterval <= 0 {
		return errors.New("autosave.sweep_interval must be positive when idle_dispose is set")
	}
	return nil
}

func verifyRemote(cfg *RemoteSection) error {
	if !cfg.Enabled {
		return nil
	}
	if !strings.HasPrefix(cfg.URL, "redis://") && !strings.HasPrefix(cfg.URL, "rediss://") {
		return errors.New("remote.url must be a redis:// or rediss:// URL when remote is enabled")
	}
	if cfg.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("remote.max_retries must not be negative")
	}
	if cfg.CAFile != "" {
		if !strings.HasPrefix(cfg.URL, "rediss://") {
			return errors.New("remote.ca_file requires a rediss:// URL")
		}
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("remote.ca_file: %w", err)
		}
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	switch adaptive.CipherType(cfg.Cipher) {
	case "", adaptive.CipherAuto, adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		return fmt.Errorf("security.cipher %q is not supported", cfg.Cipher)
	}
	if cfg.EncryptionKey == "" {
		return nil
	}
	if _, err := adaptive.ParseKey(cfg.EncryptionKey); err != nil {
		return fmt.Errorf("security.encryption_key: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
}
