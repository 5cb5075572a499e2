package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/onboard-go/internal/cli/output"
	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/core/service"
)

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream changes to a session snapshot until interrupted",
		ArgsUsage: "SESSION_ID",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "fields",
				Aliases: []string{"F"},
				Usage:   "Only report changes to these top-level data keys",
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Poll interval (default: observer.poll_interval; 0 relies on change notifications)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many changes (0 = until interrupted)",
			},
		},
		Action: watchRun,
	}
}

// changeView is one printed change.
type changeView struct {
	SessionID string     `json:"session_id"`
	Found     bool       `json:"found"`
	SavedAt   *time.Time `json:"saved_at,omitempty"`
	Value     any        `json:"value"`
}

func watchRun(c *cli.Context) error {
	id, err := requireArg(c, "SESSION_ID")
	if err != nil {
		return err
	}
	if err := domain.ValidateSessionID(id); err != nil {
		return err
	}

	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	poll := cfg.Observer.PollInterval
	if c.IsSet("poll") {
		poll = c.Duration("poll")
	}
	limit := c.Int("count")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obs := service.NewObserver(engine.Store(), id,
		service.FieldExtractor(splitFields(c.StringSlice("fields"))...),
		service.WithPollInterval(poll),
		service.WithObserverLogger(getLogger(c)),
	)
	go obs.Run(ctx)

	format := outputFormat(c)
	seen := 0
	for change := range obs.Changes() {
		if limit > 0 && seen >= limit {
			continue
		}
		if err := printChange(c, format, change); err != nil {
			cancel()
			return err
		}
		seen++
		if limit > 0 && seen >= limit {
			cancel()
		}
	}
	return nil
}

func printChange(c *cli.Context, format output.Format, change service.Change) error {
	view := changeView{SessionID: change.SessionID, Found: change.Found, Value: change.Value}
	if !change.SavedAt.IsZero() {
		t := change.SavedAt
		view.SavedAt = &t
	}

	w := writer(c)
	switch format {
	case output.FormatJSON:
		return (&output.JSONFormatter{Compact: true}).Format(w, view)
	case output.FormatYAML:
		fmt.Fprintln(w, "---")
		return (&output.YAMLFormatter{}).Format(w, view)
	}

	if !change.Found {
		_, err := fmt.Fprintf(w, "%s\t(no snapshot)\n", time.Now().UTC().Format(time.RFC3339))
		return err
	}
	value, err := json.Marshal(change.Value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\t%s\n", change.SavedAt.UTC().Format(time.RFC3339Nano), value)
	return err
}
