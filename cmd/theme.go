/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"feedstrip/config"
	"feedstrip/models"

	"github.com/urfave/cli/v2"
)

func themeCmd() *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or change the color theme",
		ArgsUsage: "[dark|light|toggle]",
		Description: `Prints the stored theme when called without arguments. Pass dark or
light to set it, or toggle to switch between them.`,
		Flags: storeFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			kv, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			sess, err := openSession(ctx, cfg, kv, 0, nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			switch arg := ctx.Args().First(); arg {
			case "":
			case "toggle":
				if _, err := sess.ToggleTheme(ctx.Context); err != nil {
					return err
				}
			default:
				theme, err := models.ParseTheme(arg)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				if err := sess.SetTheme(ctx.Context, theme); err != nil {
					return err
				}
			}

			fmt.Println(sess.Theme())
			return nil
		},
	}
}
