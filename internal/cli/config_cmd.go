// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing.
//
// Command: config [subcommand]
//
// Subcommands:
//   show [--json]     Print the effective configuration
//   init [--force]    Write the default config file
//   path              Print the config file path
//   keys              List settable keys
//   get KEY           Print one value (dot notation, e.g. server.url)
//   set KEY VALUE     Change one value in the config file

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the configuration",
		// A broken config file must not lock the user out of fixing it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := app.setup()
			var cerr *ConfigError
			if errors.As(err, &cerr) && app.Config == nil {
				app.Config = config.Default()
				app.ConfigErr = cerr.Err
				err = app.setup()
			}
			return err
		},
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.ConfigErr != nil {
				fmt.Fprintf(app.Err, "%s %v\n", WarningStyle.Render("[!!]"), app.ConfigErr)
			}
			if asJSON {
				return outputJSON(app.Out, app.Config)
			}
			return toml.NewEncoder(app.Out).Encode(app.Config)
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPathTOML()
			if err != nil {
				return &ConfigError{Err: err}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewCommandError("config", "init", "config file already exists (use --force to overwrite)", nil)
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			fmt.Fprintf(app.Out, "%s Wrote %s\n", RenderStatus("ok"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ConfigPathTOML()
			if err != nil {
				return &ConfigError{Err: err}
			}
			fmt.Fprintln(app.Out, p)
			return nil
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List settable keys",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.GetAllKeys() {
				fmt.Fprintln(app.Out, k)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Print one configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.Config.Get(args[0])
			if err != nil {
				return NewValidationError("key", args[0], err.Error())
			}
			fmt.Fprintln(app.Out, v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one value in the config file",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ConfigPathTOML()
			if err != nil {
				return &ConfigError{Err: err}
			}

			// Edit the file contents only, so environment overrides are
			// not written back.
			cfg := config.Default()
			if _, err := os.Stat(p); err == nil {
				if err := config.LoadTOML(cfg, p); err != nil {
					return &ConfigError{Path: p, Err: err}
				}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return NewValidationError("key", args[0], err.Error())
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveTOML(cfg, p); err != nil {
				return &ConfigError{Path: p, Err: err}
			}
			fmt.Fprintf(app.Out, "%s %s = %s\n", RenderStatus("ok"), args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, path, keys, get, set)
	return cmd
}
