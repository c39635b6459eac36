package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"detection-relay/internal/app"
)

// GetVersionCommand возвращает команду версии
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "%s\n", app.ServiceName)
			fmt.Fprintf(c.App.Writer, "Version:    %s\n", app.Version)
			fmt.Fprintf(c.App.Writer, "Commit:     %s\n", app.Commit)
			fmt.Fprintf(c.App.Writer, "Build Date: %s\n", app.BuildDate)
			return nil
		},
	}
}
