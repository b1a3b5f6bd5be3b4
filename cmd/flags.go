/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"feedstrip/config"
	"feedstrip/db"
	"feedstrip/feeds"
	"feedstrip/session"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "feedstrip.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"FEEDSTRIP_DATABASE"},
	}
}

func memoryFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "memory",
		Usage:   "Keep sources and theme in memory only, nothing is written to disk",
		EnvVars: []string{"FEEDSTRIP_MEMORY"},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to TOML configuration file, defaults apply when empty",
		EnvVars: []string{"FEEDSTRIP_CONFIG"},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{databaseFlag(), memoryFlag(), configFlag()}
}

// openStore migrates and opens the database, or returns an in-memory store
func openStore(ctx *cli.Context) (db.KeyValueStore, func(), error) {
	if ctx.Bool("memory") {
		log.Info("Using in-memory settings store")
		return db.NewMemoryStore(), func() {}, nil
	}

	database := ctx.String("database")
	if err := db.Migrate(database); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	conn, err := db.Open(ctx.Context, database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return conn, func() {
		if err := conn.Close(); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Warn("Error closing database")
		}
	}, nil
}

func newFetcher(cfg *config.Config) (*feeds.Fetcher, error) {
	return feeds.NewFetcher(feeds.Options{
		Timeout:    cfg.Fetch.Timeout.Duration,
		UserAgent:  cfg.Fetch.UserAgent,
		RelayURL:   cfg.Fetch.RelayURL,
		RelayParam: cfg.Fetch.RelayParam,
		MaxItems:   cfg.Fetch.MaxItems,
	})
}

func openSession(ctx *cli.Context, cfg *config.Config, kv db.KeyValueStore, width int, events chan<- interface{}) (*session.Session, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, err
	}

	return session.New(ctx.Context, session.Options{
		KV:             kv,
		Fetcher:        fetcher,
		MaxSources:     cfg.MaxSources,
		MinColumnWidth: cfg.MinColumnWidth,
		Concurrency:    cfg.Fetch.Concurrency,
		Width:          width,
		Events:         events,
	})
}
