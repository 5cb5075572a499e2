package config

import "time"

// ServerConfig is the root configuration for onboard-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Autosave AutosaveSection `koanf:"autosave"`
	Observer ObserverSection `koanf:"observer"`
	Remote   RemoteSection   `koanf:"remote"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps snapshot request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`

	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// StorageSection configures the snapshot backend.
type StorageSection struct {
	// Engine is one of memory, file, badger.
	Engine  string `koanf:"engine"`
	DataDir string `koanf:"data_dir"`

	// QuotaBytes caps stored bytes; 0 disables the quota.
	QuotaBytes int64 `koanf:"quota_bytes"`

	UsageCheckInterval time.Duration `koanf:"usage_check_interval"`
	UsageWarnRatio     float64       `koanf:"usage_warn_ratio"`

	Badger BadgerConfig `koanf:"badger"`
}

// BadgerConfig tunes the badger engine.
type BadgerConfig struct {
	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	CacheSize   int64   `koanf:"cache_size"`
	SyncWrites  bool    `koanf:"sync_writes"`
	InMemory    bool    `koanf:"in_memory"`
}

// AutosaveSection configures auto-save controllers.
type AutosaveSection struct {
	// SavedDisplay is how long "saved" shows before "idle".
	SavedDisplay time.Duration `koanf:"saved_display"`

	// IdleDispose drops controllers unused this long; 0 keeps them.
	IdleDispose   time.Duration `koanf:"idle_dispose"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// FlushOnShutdown retries pending payloads before exit.
	FlushOnShutdown bool `koanf:"flush_on_shutdown"`
}

// ObserverSection configures storage sync observers.
type ObserverSection struct {
	// PollInterval re-reads snapshots in addition to watch events; 0 disables.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// RemoteSection configures the remote persistence collaborator.
type RemoteSection struct {
	Enabled    bool          `koanf:"enabled"`
	URL        string        `koanf:"url"`
	KeyPrefix  string        `koanf:"key_prefix"`
	TTL        time.Duration `koanf:"ttl"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	Backoff    time.Duration `koanf:"backoff"`

	// CAFile is an extra trusted CA (PEM) for rediss:// URLs.
	CAFile string `koanf:"ca_file"`
}

// SecuritySection configures at-rest encryption.
type SecuritySection struct {
	// EncryptionKey is a 32-byte key, hex or base64. Empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher is auto, aes-gcm, or chacha20-poly1305.
	Cipher string `koanf:"cipher"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
