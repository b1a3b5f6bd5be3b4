/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedstrip",
		Usage: "Aggregate RSS and Atom feeds into side by side columns",
		Description: `Feedstrip keeps an ordered list of RSS and Atom feeds, fetches
		them concurrently and lays the results out as columns that fit the
		available width.

		The feed list and theme are stored in an SQLite database. The serve
		command exposes everything over an HTTP API with server-sent events
		reporting fetch progress.

		Flags can generally be set via environment variables, e.g.:

		--database => FEEDSTRIP_DATABASE=feedstrip.db
		--port => FEEDSTRIP_PORT=8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"FEEDSTRIP_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			sourcesCmd(),
			fetchCmd(),
			themeCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
