/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"feedstrip/aggregator"
	"feedstrip/config"
	"feedstrip/models"
	"feedstrip/registry"
	"feedstrip/store"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch feeds once and print the results",
		ArgsUsage: "[url...]",
		Description: `Runs a single aggregation cycle and prints every result as a JSON
object on its own line, in the order fetches complete.

Fetches the stored feeds unless URLs are passed as arguments. Use a tool
like jq to process the output.

Prints all other log messages to stderr.`,
		Flags: storeFlags(),
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			sources, err := fetchSources(ctx, cfg)
			if err != nil {
				return err
			}

			fetcher, err := newFetcher(cfg)
			if err != nil {
				return err
			}

			// Room for every event so none are dropped
			events := make(chan interface{}, len(sources)+2)
			results := store.New()
			cycle := aggregator.New(fetcher, results, cfg.Fetch.Concurrency, events)

			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for event := range events {
					switch event := event.(type) {
					case models.SourceFetchedEvent:
						if result, ok := results.Get(event.Source); ok {
							printStdout(result)
						}
					case models.CycleCompletedEvent:
						log.WithFields(log.Fields{
							"succeeded": event.Succeeded,
							"failed":    event.Failed,
							"duration":  event.Duration,
						}).Info("Fetch complete")
					}
				}
			}()

			report := cycle.Run(ctx.Context, sources, nil)
			close(events)
			<-printed

			if report.Sources > 0 && report.Failed == report.Sources {
				return cli.Exit("All feeds failed to load", 1)
			}
			return nil
		},
	}
}

// fetchSources returns the argument URLs, or the stored feeds when there are none
func fetchSources(ctx *cli.Context, cfg *config.Config) ([]string, error) {
	if ctx.NArg() > 0 {
		var sources []string
		for _, raw := range ctx.Args().Slice() {
			identity, err := registry.Normalize(raw)
			if err != nil {
				return nil, userError(err, cfg.MaxSources)
			}
			sources = append(sources, identity)
		}
		return lo.Uniq(sources), nil
	}

	kv, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	r, err := registry.Load(ctx.Context, kv, cfg.MaxSources, nil)
	if err != nil {
		return nil, err
	}
	return r.List(), nil
}

func printStdout(result models.FeedRenderResult) {
	// Print as single JSON string on a single line
	resultJson, err := json.Marshal(result)
	if err == nil {
		fmt.Println(string(resultJson))
	}
}
