package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/onboard-go/internal/cli/output"
	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/storage/remote"
)

// SnapshotCommand returns the snapshot subcommand group.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Aliases: []string{"snap"},
		Usage:   "Manage stored session snapshots",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List stored sessions",
				Action:  snapshotList,
			},
			{
				Name:      "show",
				Aliases:   []string{"get"},
				Usage:     "Show a session snapshot",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "fields",
						Aliases: []string{"F"},
						Usage:   "Only show these top-level data keys",
					},
				},
				Action: snapshotShow,
			},
			{
				Name:      "save",
				Usage:     "Save a snapshot through the auto-save controller",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"D"},
						Usage:   "JSON payload",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the JSON payload from a file ('-' for stdin)",
					},
					&cli.StringFlag{
						Name:  "step",
						Usage: "Merge the payload into this onboarding step instead of replacing the snapshot",
					},
				},
				Action: snapshotSave,
			},
			{
				Name:      "clear",
				Aliases:   []string{"rm"},
				Usage:     "Remove a session snapshot",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Also delete the remote copy when remote persistence is enabled",
					},
				},
				Action: snapshotClear,
			},
		},
	}
}

// snapshotRow is one line of snapshot list.
type snapshotRow struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
	Steps     string    `json:"steps"`
	NextStep  string    `json:"next_step"`
}

// snapshotView is the structured form of snapshot show.
type snapshotView struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
	Data      any       `json:"data"`
}

// saveView reports the outcome of snapshot save.
type saveView struct {
	SessionID  string            `json:"session_id"`
	Status     domain.SaveStatus `json:"status"`
	SavedAt    *time.Time        `json:"saved_at,omitempty"`
	LocalError string            `json:"local_error,omitempty"`
	Progress   string            `json:"progress,omitempty"`
	NextStep   string            `json:"next_step,omitempty"`
}

// clearView reports the outcome of snapshot clear.
type clearView struct {
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
	Remote    bool   `json:"remote"`
}

func snapshotList(c *cli.Context) error {
	engine, _, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	store := engine.Store()
	ids, err := store.List(c.Context)
	if err != nil {
		return err
	}

	rows := make([]snapshotRow, 0, len(ids))
	for _, id := range ids {
		snap, found, err := store.Read(c.Context, id)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		row := snapshotRow{SessionID: id, SavedAt: snap.SavedAt}
		if data, ok := onboardingData(snap); ok {
			row.Steps = fmt.Sprintf("%d/%d", len(data.CompletedSteps), len(domain.Steps))
			row.NextStep = string(data.NextStep())
		}
		rows = append(rows, row)
	}

	if outputFormat(c) == output.FormatTable && len(rows) == 0 {
		fmt.Fprintln(writer(c), "No snapshots stored.")
		return nil
	}
	return printResult(c, rows)
}

func snapshotShow(c *cli.Context) error {
	id, err := requireArg(c, "SESSION_ID")
	if err != nil {
		return err
	}
	if err := domain.ValidateSessionID(id); err != nil {
		return err
	}

	engine, _, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	snap, found, err := engine.Store().Read(c.Context, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrSnapshotNotFound.WithDetails(id)
	}

	fields := splitFields(c.StringSlice("fields"))
	data, err := service.FieldExtractor(fields...)(snap.Data)
	if err != nil {
		return err
	}

	if outputFormat(c) != output.FormatTable {
		return printResult(c, snapshotView{SessionID: id, SavedAt: snap.SavedAt, Data: data})
	}

	w := writer(c)
	fmt.Fprintf(w, "Session:  %s\n", id)
	fmt.Fprintf(w, "Saved at: %s\n", snap.SavedAt.Format(time.RFC3339Nano))
	if od, ok := onboardingData(snap); ok && len(fields) == 0 {
		if err := output.NewProgressBar("Progress:").Render(w, len(od.CompletedSteps), len(domain.Steps)); err != nil {
			return err
		}
		if next := od.NextStep(); next != "" {
			fmt.Fprintf(w, "Next:     %s\n", next)
		}
	}
	fmt.Fprintln(w)
	return (&output.JSONFormatter{}).Format(w, data)
}

func snapshotSave(c *cli.Context) error {
	id, err := requireArg(c, "SESSION_ID")
	if err != nil {
		return err
	}
	if err := domain.ValidateSessionID(id); err != nil {
		return err
	}
	raw, err := readPayload(c)
	if err != nil {
		return err
	}

	engine, cfg, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()
	log := getLogger(c)
	store := engine.Store()

	opts := []service.ControllerOption{
		service.WithLogger(log),
		service.WithSavedDisplay(cfg.Autosave.SavedDisplay),
	}
	if cfg.Remote.Enabled {
		saver, err := remote.NewRedisSaver(cfg.Remote.RemoteConfig(), log)
		if err != nil {
			return fmt.Errorf("init remote: %w", err)
		}
		defer saver.Close()
		opts = append(opts, service.WithRemote(saver))
	}

	var payload any = raw
	var merged *domain.OnboardingData
	if stepName := c.String("step"); stepName != "" {
		step, err := domain.ParseStep(stepName)
		if err != nil {
			return err
		}
		merged = &domain.OnboardingData{}
		snap, found, err := store.Read(c.Context, id)
		if err != nil {
			return err
		}
		if found {
			if err := snap.Decode(merged); err != nil {
				return domain.ErrBadRequest.WithDetails("stored snapshot is not onboarding data").WithCause(err)
			}
		}
		if err := merged.Merge(step, raw); err != nil {
			return err
		}
		payload = merged
	}

	ctrl := service.NewController(id, store, opts...)
	defer ctrl.Close()

	res := ctrl.Save(c.Context, payload)
	if res.Err != nil {
		return fmt.Errorf("save %s: %w", id, res.Err)
	}

	view := saveView{SessionID: id, Status: res.Status}
	if res.Snapshot != nil {
		t := res.Snapshot.SavedAt
		view.SavedAt = &t
	}
	if res.LocalErr != nil {
		view.LocalError = res.LocalErr.Error()
	}
	if merged != nil {
		view.Progress = fmt.Sprintf("%d/%d", len(merged.CompletedSteps), len(domain.Steps))
		view.NextStep = string(merged.NextStep())
	}
	return printResult(c, view)
}

func snapshotClear(c *cli.Context) error {
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

	if err := engine.Store().Clear(c.Context, id); err != nil {
		return err
	}

	view := clearView{SessionID: id, Cleared: true}
	if c.Bool("remote") {
		if !cfg.Remote.Enabled {
			return errors.New("--remote requires remote.enabled in the configuration")
		}
		saver, err := remote.NewRedisSaver(cfg.Remote.RemoteConfig(), getLogger(c))
		if err != nil {
			return fmt.Errorf("init remote: %w", err)
		}
		defer saver.Close()
		if err := saver.Delete(c.Context, id); err != nil {
			return err
		}
		view.Remote = true
	}

	if outputFormat(c) == output.FormatTable {
		fmt.Fprintf(writer(c), "Cleared %s\n", id)
		return nil
	}
	return printResult(c, view)
}

// readPayload returns the JSON payload from --data or --file.
func readPayload(c *cli.Context) (json.RawMessage, error) {
	var raw []byte
	switch data, file := c.String("data"), c.String("file"); {
	case data != "" && file != "":
		return nil, errors.New("--data and --file are mutually exclusive")
	case data != "":
		raw = []byte(data)
	case file == "-":
		r := c.App.Reader
		if r == nil {
			r = os.Stdin
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, errors.New("one of --data or --file is required")
	}

	if !json.Valid(raw) {
		return nil, domain.ErrSerializationFailure.WithDetails("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// onboardingData decodes snap as onboarding data. ok is false for any
// other payload shape.
func onboardingData(snap *domain.SessionSnapshot) (*domain.OnboardingData, bool) {
	var data domain.OnboardingData
	if err := snap.Decode(&data); err != nil {
		return nil, false
	}
	if len(data.CompletedSteps) == 0 && data.CurrentStep == "" {
		return nil, false
	}
	return &data, true
}

// splitFields accepts repeated and comma-separated field names.
func splitFields(values []string) []string {
	var fields []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	return fields
}
