package command

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/onboard-go/internal/cli/connection"
	"github.com/yndnr/onboard-go/internal/cli/output"
	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/server/httpserver/handler"
)

// ServerCommand returns the server subcommand group. These commands reach
// a running onboard-server, which owns the auto-save controllers.
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Query a running onboard-server",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: serverHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness (storage reachable)",
				Action: serverReady,
			},
			{
				Name:   "sessions",
				Usage:  "List sessions stored by the server",
				Action: serverSessions,
			},
			{
				Name:      "status",
				Usage:     "Show the auto-save state of a session",
				ArgsUsage: "SESSION_ID",
				Action:    serverStatus,
			},
			{
				Name:      "retry",
				Usage:     "Retry the pending save of a session",
				ArgsUsage: "SESSION_ID",
				Action:    serverRetry,
			},
		},
	}
}

// EnsureConnected returns an HTTP client for the --server address.
func EnsureConnected(c *cli.Context) *connection.HTTPClient {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server, flags.Timeout)
}

func serverHealth(c *cli.Context) error {
	var out map[string]string
	if err := EnsureConnected(c).Get(c.Context, "/health", &out); err != nil {
		return err
	}
	return printResult(c, out)
}

func serverReady(c *cli.Context) error {
	var out map[string]any
	if err := EnsureConnected(c).Get(c.Context, "/ready", &out); err != nil {
		return err
	}
	return printResult(c, out)
}

func serverSessions(c *cli.Context) error {
	var out handler.ListSessionsResponse
	if err := EnsureConnected(c).Get(c.Context, "/sessions", &out); err != nil {
		return err
	}
	if outputFormat(c) == output.FormatTable {
		if out.Total == 0 {
			fmt.Fprintln(writer(c), "No sessions stored.")
			return nil
		}
		return printResult(c, out.Items)
	}
	return printResult(c, out)
}

func serverStatus(c *cli.Context) error {
	id, err := sessionArg(c)
	if err != nil {
		return err
	}
	var out handler.StateResponse
	if err := EnsureConnected(c).Get(c.Context, "/sessions/"+url.PathEscape(id)+"/status", &out); err != nil {
		return err
	}
	return printResult(c, out)
}

func serverRetry(c *cli.Context) error {
	id, err := sessionArg(c)
	if err != nil {
		return err
	}
	var out handler.SaveResponse
	if err := EnsureConnected(c).Post(c.Context, "/sessions/"+url.PathEscape(id)+"/snapshot/retry", nil, &out); err != nil {
		return err
	}
	if out.NoOp && outputFormat(c) == output.FormatTable {
		fmt.Fprintf(writer(c), "Nothing pending for %s\n", id)
		return nil
	}
	return printResult(c, out)
}

func sessionArg(c *cli.Context) (string, error) {
	id, err := requireArg(c, "SESSION_ID")
	if err != nil {
		return "", err
	}
	return id, domain.ValidateSessionID(id)
}
