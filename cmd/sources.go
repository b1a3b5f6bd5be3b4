/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"feedstrip/config"
	"feedstrip/models"
	"feedstrip/registry"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

func sourcesCmd() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Manage the list of feeds",
		Description: `Adds, removes and lists the stored feeds.

Feeds are shown in the order they were added. Only absolute http and https
URLs are accepted and each feed can only be added once.`,
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a feed",
				ArgsUsage: "[url]",
				Flags:     storeFlags(),
				Action: func(ctx *cli.Context) error {
					return withRegistry(ctx, func(cfg *config.Config, r *registry.Registry) error {
						rawURL := ctx.Args().First()
						if rawURL == "" {
							var err error
							rawURL, err = prompt.New().Ask("Feed URL:").Input("https://example.com/rss.xml")
							if err != nil {
								return err
							}
						}

						identity, err := r.Add(ctx.Context, rawURL)
						if err != nil {
							return userError(err, cfg.MaxSources)
						}
						fmt.Println("Added feed", identity)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a feed",
				ArgsUsage: "[url]",
				Flags:     storeFlags(),
				Action: func(ctx *cli.Context) error {
					return withRegistry(ctx, func(cfg *config.Config, r *registry.Registry) error {
						identity := ctx.Args().First()
						if identity == "" {
							if r.Len() == 0 {
								return errors.New(models.NotFound.Message(cfg.MaxSources))
							}
							var err error
							identity, err = prompt.New().Ask("Remove which feed?").Choose(r.List())
							if err != nil {
								return err
							}
						} else if normalized, err := registry.Normalize(identity); err == nil {
							identity = normalized
						}

						if err := r.Remove(ctx.Context, identity); err != nil {
							return userError(err, cfg.MaxSources)
						}
						fmt.Println("Removed feed", identity)
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List feeds in display order",
				Flags: storeFlags(),
				Action: func(ctx *cli.Context) error {
					return withRegistry(ctx, func(cfg *config.Config, r *registry.Registry) error {
						for i, identity := range r.List() {
							fmt.Printf("%d\t%s\n", i+1, identity)
						}
						return nil
					})
				},
			},
		},
	}
}

func withRegistry(ctx *cli.Context, fn func(cfg *config.Config, r *registry.Registry) error) error {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	kv, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := registry.Load(ctx.Context, kv, cfg.MaxSources, nil)
	if err != nil {
		return err
	}
	return fn(cfg, r)
}

// userError replaces registry errors with the message shown to users
func userError(err error, maxSources int) error {
	var feedErr *models.FeedError
	if errors.As(err, &feedErr) {
		return cli.Exit(feedErr.Kind.Message(maxSources), 1)
	}
	return err
}
