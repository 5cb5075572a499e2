package config

import (
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/remote"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
)

// KVConfig maps the storage section onto a backend configuration.
func (s *StorageSection) KVConfig() kv.Config {
	return kv.Config{
		Engine:     s.Engine,
		Dir:        s.DataDir,
		QuotaBytes: s.QuotaBytes,
		Badger: kv.BadgerConfig{
			GCInterval:  s.Badger.GCInterval,
			GCThreshold: s.Badger.GCThreshold,
			CacheSize:   s.Badger.CacheSize,
			SyncWrites:  s.Badger.SyncWrites,
			InMemory:    s.Badger.InMemory,
		},
	}
}

// RemoteConfig maps the remote section onto a Redis saver configuration.
func (r *RemoteSection) RemoteConfig() remote.Config {
	return remote.Config{
		URL:        r.URL,
		KeyPrefix:  r.KeyPrefix,
		TTL:        r.TTL,
		Timeout:    r.Timeout,
		MaxRetries: r.MaxRetries,
		Backoff:    r.Backoff,
		CAFile:     r.CAFile,
	}
}

// LoggerConfig maps the log section onto a logger configuration.
func (l *LogSection) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	return cfg
}
