// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command tree and shared application state for levchat.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/assets"
	"github.com/jeranaias/levchat/internal/config"
	"github.com/jeranaias/levchat/internal/history"
	"github.com/jeranaias/levchat/internal/llama"
	"github.com/jeranaias/levchat/internal/logging"
	"github.com/jeranaias/levchat/internal/protocol"
	"github.com/jeranaias/levchat/internal/session"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// App holds what every command needs: configuration, logger and output.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer

	// ConfigErr is a config file problem that was survived by falling back
	// to defaults. Reported by doctor.
	ConfigErr error

	configPath string
	verbose    bool
	logCloser  io.Closer
}

// NewApp creates an App writing to out and errOut.
func NewApp(out, errOut io.Writer) *App {
	return &App{Out: out, Err: errOut}
}

// setup loads .env, the configuration and the logger. A Config set before
// the command runs is used as is.
func (a *App) setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(a.Err, "%s .env not loaded: %v\n", WarningStyle.Render("[!!]"), err)
	}

	if a.Config == nil {
		if a.configPath != "" {
			cfg, err := config.LoadFromPath(a.configPath)
			if err != nil {
				return &ConfigError{Path: a.configPath, Err: err}
			}
			a.Config = cfg
		} else {
			cfg, err := config.Load()
			if cfg == nil {
				return &ConfigError{Err: err}
			}
			a.Config = cfg
			a.ConfigErr = err
		}
	}

	if a.Logger == nil {
		lc := a.Config.Logging
		if a.verbose {
			lc.Level = "debug"
		}
		logger, closer, err := logging.New(lc, a.Err)
		if err != nil {
			return &ConfigError{Err: err}
		}
		a.Logger, a.logCloser = logger, closer
	}
	if a.ConfigErr != nil {
		a.Logger.Warn("config file ignored, using defaults", "err", a.ConfigErr)
	}
	return nil
}

// Close releases the log file.
func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

func (a *App) openStore(ctx context.Context) (*history.SQLiteStore, error) {
	path, err := a.Config.DatabasePath()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return history.OpenSQLite(ctx, path)
}

func (a *App) client() *llama.Client {
	return llama.NewClient(&llama.ClientConfig{
		URL:              a.Config.Server.URL,
		HandshakeTimeout: a.Config.HandshakeTimeout(),
		WriteTimeout:     a.Config.WriteTimeout(),
		ReadLimit:        a.Config.Server.ReadLimitBytes,
		Logger:           a.Logger.With("component", "llama"),
	})
}

func (a *App) library() (*assets.Library, error) {
	root, err := a.Config.ModelsRoot()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return assets.NewLibrary(root)
}

func (a *App) decoder() protocol.Decoder {
	mode := protocol.ModeLenient
	if a.Config.Generation.StrictFrames {
		mode = protocol.ModeStrict
	}
	dec := protocol.NewDecoder(mode)
	dec.CompletionMarker = a.Config.Generation.CompletionMarker
	return dec
}

func (a *App) sessionConfig() session.Config {
	return session.Config{
		Temperature:   a.Config.Generation.Temperature,
		MaxTokens:     a.Config.Generation.MaxTokens,
		Decoder:       a.decoder(),
		ChatNameWidth: a.Config.History.ChatNameWidth,
	}
}

// =============================================================================
// COMMAND TREE
// =============================================================================

// NewRootCommand builds the levchat command tree. Running the root
// without a subcommand starts an interactive chat.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "levchat",
		Short: "Chat with a local inference server from the terminal",
		Long: `levchat is a terminal client for a local LLM inference process.

Replies stream in as they are generated, chats are kept in a local SQLite
database, and GGUF model files can be downloaded into the model library.`,
		Example: `  levchat                          Start an interactive chat
  levchat chat --chat <id>         Continue an existing chat
  levchat chats list               List saved chats
  levchat models download <url> --kind languageModel
  levchat doctor                   Check server, database and models`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), app, chatOptions{})
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ~/.levchat/config.toml)")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ValidationError{Field: "flags", Reason: err.Error(), Example: cmd.UseLine()}
	})

	root.AddCommand(
		newChatCommand(app),
		newChatsCommand(app),
		newModelsCommand(app),
		newDoctorCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := NewApp(stdout, stderr)
	defer app.Close()

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		DisplayError(stderr, err)
	}
	return GetExitCode(err)
}

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

// exactArgs is cobra.ExactArgs returning a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &ValidationError{
				Field:   "arguments",
				Value:   strings.Join(args, " "),
				Reason:  fmt.Sprintf("expected %d, got %d", n, len(args)),
				Example: cmd.UseLine(),
			}
		}
		return nil
	}
}

// minArgs is cobra.MinimumNArgs returning a usage error.
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &ValidationError{
				Field:   "arguments",
				Reason:  fmt.Sprintf("expected at least %d, got %d", n, len(args)),
				Example: cmd.UseLine(),
			}
		}
		return nil
	}
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(app.Out, "levchat %s\n", Version)
			fmt.Fprintln(app.Out, RenderLabel("Commit", GitCommit))
			fmt.Fprintln(app.Out, RenderLabel("Built", BuildDate))
			fmt.Fprintln(app.Out, RenderLabel("Go", runtime.Version()))
			fmt.Fprintln(app.Out, RenderLabel("Platform", runtime.GOOS+"/"+runtime.GOARCH))
			return nil
		},
	}
}
