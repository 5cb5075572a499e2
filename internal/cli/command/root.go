package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/onboard-go/internal/cli/output"
	"github.com/yndnr/onboard-go/internal/infra/buildinfo"
	"github.com/yndnr/onboard-go/internal/infra/confloader"
	"github.com/yndnr/onboard-go/internal/server/config"
	"github.com/yndnr/onboard-go/internal/storage"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

const loggerKey = "logger"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "onboard-cli",
		Usage:    "Inspect and edit onboarding session snapshots",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			SnapshotCommand(),
			WatchCommand(),
			ServerCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return err
			}
			level := "warn"
			if c.Bool("verbose") {
				level = "debug"
			}
			log, err := logger.New(logger.Config{
				Level:  level,
				Format: "text",
				Output: c.App.ErrWriter,
			})
			if err != nil {
				return err
			}
			c.App.Metadata[loggerKey] = log
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "onboard-server config file to take storage settings from",
			EnvVars: []string{"ONBOARD_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Storage engine: memory, file, badger",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Storage data directory",
		},
		&cli.StringFlag{
			Name:  "encryption-key",
			Usage: "Snapshot encryption key (hex or base64)",
		},
		&cli.StringFlag{
			Name:  "cipher",
			Usage: "Snapshot cipher: auto, aes-gcm, chacha20-poly1305",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "onboard-server address for server commands",
			EnvVars: []string{"ONBOARD_SERVER"},
			Value:   "127.0.0.1:8080",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout for server commands",
			Value: 10 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging on stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config        string
	Backend       string
	DataDir       string
	EncryptionKey string
	Cipher        string

	Server  string
	Timeout time.Duration

	Output  string
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:        c.String("config"),
		Backend:       c.String("backend"),
		DataDir:       c.String("data-dir"),
		EncryptionKey: c.String("encryption-key"),
		Cipher:        c.String("cipher"),
		Server:        c.String("server"),
		Timeout:       c.Duration("timeout"),
		Output:        c.String("output"),
		Verbose:       c.Bool("verbose"),
	}
}

// overrides maps the storage flags that were given onto config keys.
func (f *GlobalFlags) overrides() map[string]any {
	values := map[string]any{}
	if f.Backend != "" {
		values["storage.engine"] = f.Backend
	}
	if f.DataDir != "" {
		values["storage.data_dir"] = f.DataDir
	}
	if f.EncryptionKey != "" {
		values["security.encryption_key"] = f.EncryptionKey
	}
	if f.Cipher != "" {
		values["security.cipher"] = f.Cipher
	}
	return values
}

// loadConfig resolves server defaults, the optional config file, ONBOARD_
// environment variables and the storage flags, in that order.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	flags := ParseGlobalFlags(c)

	cfg := config.Default()
	opts := []confloader.Option{confloader.WithOverrides(flags.overrides())}
	if flags.Config != "" {
		opts = append(opts, confloader.WithConfigFile(flags.Config))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openEngine opens the configured backend for one command. The caller
// closes it.
func openEngine(c *cli.Context) (*storage.Engine, *config.ServerConfig, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	log := getLogger(c)

	storageCfg := storage.DefaultConfig()
	storageCfg.KV = cfg.Storage.KVConfig()
	storageCfg.UsageCheckInterval = 0
	storageCfg.Logger = log

	if cfg.Security.EncryptionKey != "" {
		key, err := adaptive.ParseKey(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		cipher, err := adaptive.NewWithType(key, adaptive.CipherType(cfg.Security.Cipher))
		if err != nil {
			return nil, nil, err
		}
		storageCfg.Cipher = cipher
	}

	engine, err := storage.New(storageCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Engine, err)
	}
	log.Debug("storage opened", "engine", cfg.Storage.Engine, "data_dir", cfg.Storage.DataDir)
	return engine, cfg, nil
}

// getLogger returns the logger set up in Before.
func getLogger(c *cli.Context) *slog.Logger {
	if log, ok := c.App.Metadata[loggerKey].(*slog.Logger); ok {
		return log
	}
	return logger.Discard()
}

// outputFormat returns the selected output format.
func outputFormat(c *cli.Context) output.Format {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return output.FormatTable
	}
	return format
}

// printResult writes data to the app writer in the selected format.
func printResult(c *cli.Context, data any) error {
	return output.NewFormatter(outputFormat(c)).Format(writer(c), data)
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// requireArg returns the single positional argument, named for the usage error.
func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s requires exactly one %s argument", c.Command.FullName(), name)
	}
	return c.Args().First(), nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
