package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/onboard-go/internal/cli/output"
	"github.com/yndnr/onboard-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			if outputFormat(c) == output.FormatTable {
				_, err := fmt.Fprintln(writer(c), buildinfo.String())
				return err
			}
			return printResult(c, buildinfo.Get())
		},
	}
}
