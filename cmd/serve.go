/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedstrip/config"
	"feedstrip/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feedstrip API",
		Description: `Starts the feedstrip HTTP server.

Loads the stored feed list, runs an aggregation cycle and serves the
resulting columns over an HTTP API. Fetch progress is pushed to clients
as server-sent events on /api/events and metrics are exposed on /metrics.`,
		Flags: append(storeFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the config file",
				EnvVars: []string{"FEEDSTRIP_PORT"},
			},
			&cli.IntFlag{
				Name:    "width",
				Aliases: []string{"w"},
				Value:   1050,
				Usage:   "Initial viewport width in pixels until a client reports its own",
				EnvVars: []string{"FEEDSTRIP_WIDTH"},
			},
			&cli.DurationFlag{
				Name:    "refresh-interval",
				Usage:   "Re-fetch all feeds on this interval, 0 disables",
				EnvVars: []string{"FEEDSTRIP_REFRESH_INTERVAL"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			port := cfg.Server.Port
			if ctx.IsSet("port") {
				port = ctx.Int("port")
			}

			kv, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			// Channel for cycle events forwarded to SSE clients
			events := make(chan interface{}, 1000)

			sess, err := openSession(ctx, cfg, kv, ctx.Int("width"), events)
			if err != nil {
				return err
			}
			defer sess.Close()

			bc := server.NewBroadcaster()
			app := server.Server(&server.ServerConfig{
				Session:      sess,
				Broadcaster:  bc,
				AllowOrigins: cfg.Server.AllowOrigins,
				ResizeLimit:  cfg.Server.ResizeLimit,
				ResizeWindow: cfg.Server.ResizeWindow.Duration,
			})

			runCtx, cancel := context.WithCancel(ctx.Context)
			defer cancel()

			go bc.Run(runCtx, events)

			if err := sess.Refresh(); err != nil {
				return err
			}

			if interval := ctx.Duration("refresh-interval"); interval > 0 {
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						select {
						case <-runCtx.Done():
							return
						case <-ticker.C:
							log.Info("Refreshing feeds on interval")
							if err := sess.Refresh(); err != nil {
								return
							}
						}
					}
				}()
			}

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-c
				log.Info("Gracefully shutting down...")
				bc.Shutdown()
				if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
					log.WithFields(log.Fields{
						"error": err,
					}).Error("Error shutting down server")
				}
			}()

			log.WithFields(log.Fields{
				"port":    port,
				"sources": len(sess.Sources()),
			}).Info("Starting server")

			if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
