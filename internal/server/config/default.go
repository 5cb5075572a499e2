package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20 // 1MB

	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 40

	DefaultEngine             = "badger"
	DefaultDataDir            = "/var/lib/onboard-server/data"
	DefaultQuotaBytes         = 512 << 20 // 512MB
	DefaultUsageCheckInterval = time.Minute
	DefaultUsageWarnRatio     = 0.9

	DefaultSavedDisplay  = 2 * time.Second
	DefaultIdleDispose   = 30 * time.Minute
	DefaultSweepInterval = time.Minute

	DefaultPollInterval = 2 * time.Second

	DefaultRemoteKeyPrefix  = "onboarding:session:"
	DefaultRemoteTimeout    = 3 * time.Second
	DefaultRemoteMaxRetries = 2
	DefaultRemoteBackoff    = 200 * time.Millisecond

	DefaultCipher = "auto"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
				MaxBodyBytes:    DefaultMaxBodyBytes,
				RateLimit: RateLimitConfig{
					Enabled: true,
					RPS:     DefaultRateLimitRPS,
					Burst:   DefaultRateLimitBurst,
				},
			},
		},
		Storage: StorageSection{
			Engine:             DefaultEngine,
			DataDir:            DefaultDataDir,
			QuotaBytes:         DefaultQuotaBytes,
			UsageCheckInterval: DefaultUsageCheckInterval,
			UsageWarnRatio:     DefaultUsageWarnRatio,
			Badger: BadgerConfig{
				GCInterval:  "10m",
				GCThreshold: 0.5,
				CacheSize:   16 << 20,
				SyncWrites:  true,
			},
		},
		Autosave: AutosaveSection{
			SavedDisplay:    DefaultSavedDisplay,
			IdleDispose:     DefaultIdleDispose,
			SweepInterval:   DefaultSweepInterval,
			FlushOnShutdown: true,
		},
		Observer: ObserverSection{
			PollInterval: DefaultPollInterval,
		},
		Remote: RemoteSection{
			KeyPrefix:  DefaultRemoteKeyPrefix,
			Timeout:    DefaultRemoteTimeout,
			MaxRetries: DefaultRemoteMaxRetries,
			Backoff:    DefaultRemoteBackoff,
		},
		Security: SecuritySection{
			Cipher: DefaultCipher,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
