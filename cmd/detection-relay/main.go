package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"detection-relay/internal/app"
	"detection-relay/internal/app/commands"
)

func main() {
	cliApp := &cli.App{
		Name:     app.ServiceName,
		Usage:    "Real-time presence, detection fan-out and video frame relay",
		Version:  app.Version,
		Flags:    commands.GlobalFlags(),
		Commands: commands.GetCommands(),
		// без команды запускается сервер
		DefaultCommand: "server",
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
