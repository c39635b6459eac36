package commands

import (
	"github.com/urfave/cli/v2"
)

// GetCommands возвращает все доступные команды
func GetCommands() []*cli.Command {
	return []*cli.Command{
		GetServerCommand(),
		GetProducerCommand(),
		GetObserveCommand(),
		GetHealthCheckCommand(),
		GetVersionCommand(),
	}
}

// GlobalFlags флаги, общие для всех команд
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "./config/config.yaml",
			Usage:   "Path to config file (optional)",
			EnvVars: []string{"RELAY_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Value: "json",
			Usage: "Log format: json, console",
		},
	}
}
