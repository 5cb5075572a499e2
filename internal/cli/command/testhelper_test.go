package command

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

// runApp runs onboard-cli with args and returns what it wrote to stdout.
func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"onboard-cli"}, args...))
	return out.String(), err
}

// fileBackend returns global flags selecting a fresh file backend.
func fileBackend(t *testing.T) []string {
	t.Helper()
	return []string{"--backend", "file", "--data-dir", t.TempDir()}
}

// testContext creates a CLI context carrying the global flags.
func testContext(args ...string) *cli.Context {
	app := &cli.App{
		Name:     "test",
		Flags:    globalFlags(),
		Metadata: map[string]any{},
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		f.Apply(set)
	}
	set.Parse(args)

	return cli.NewContext(app, set, nil)
}
