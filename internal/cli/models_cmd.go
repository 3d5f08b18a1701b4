// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - Model library management.
//
// Command: models [subcommand]
//
// Subcommands:
//   list [--kind K]          List .gguf files in the library
//   validate URL             Check a model URL and show its file name
//   download URL --kind K    Download a model into the library
//   watch                    Report library changes until interrupted
//
// Kinds: languageModel (model/), embeddingModel (em_model/)

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/assets"
)

func newModelsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage downloaded GGUF models",
	}

	var listKind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List models in the library",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := app.library()
			if err != nil {
				return err
			}
			kinds := assets.Kinds
			if listKind != "" {
				k, err := assets.ParseKind(listKind)
				if err != nil {
					return err
				}
				kinds = []assets.Kind{k}
			}
			for _, k := range kinds {
				printModels(app, lib, k)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listKind, "kind", "", "languageModel or embeddingModel (default: both)")

	validate := &cobra.Command{
		Use:   "validate URL",
		Short: "Check that a URL points at a .gguf file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := assets.ValidateURL(args[0]); err != nil {
				return err
			}
			name, err := assets.FileNameFromURL(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s %s\n", RenderStatus("ok"), name)
			return nil
		},
	}

	var downloadKind string
	download := &cobra.Command{
		Use:   "download URL",
		Short: "Download a model into the library",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := assets.ParseKind(downloadKind)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), app, args[0], kind)
		},
	}
	download.Flags().StringVar(&downloadKind, "kind", string(assets.KindLanguageModel), "languageModel or embeddingModel")

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print library changes until interrupted",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), app)
		},
	}

	cmd.AddCommand(list, validate, download, watch)
	return cmd
}

func printModels(app *App, lib *assets.Library, k assets.Kind) {
	names, err := lib.List(k)
	fmt.Fprintf(app.Out, "%s %s\n", TitleStyle.UnsetMarginBottom().Render(k.Label()), DimStyle.Render(lib.Dir(k)))
	switch {
	case err != nil:
		fmt.Fprintf(app.Out, "  %s %v\n", RenderStatus("fail"), err)
	case len(names) == 0:
		fmt.Fprintln(app.Out, DimStyle.Render("  (none)"))
	default:
		for _, n := range names {
			fmt.Fprintf(app.Out, "  %s\n", n)
		}
	}
}

// runDownload downloads one model. Ctrl+C cancels and removes the partial
// file.
func runDownload(ctx context.Context, app *App, url string, kind assets.Kind) error {
	lib, err := app.library()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	dl := assets.NewDownloader(lib, assets.DownloaderConfig{
		ProgressPerSec: app.Config.Models.ProgressPerSec,
		Logger:         app.Logger.With("component", "downloader"),
	})

	var path string
	if IsTTY() && isTerminalWriter(app.Err) {
		path, err = downloadWithView(ctx, app, dl, url, kind)
	} else {
		dl.OnProgress(func(p assets.Progress) {
			if !p.Active {
				return
			}
			if pct := p.Percentage(); pct >= 0 {
				fmt.Fprintf(app.Err, "\r%s %5.1f%% of %s", p.Filename, pct, formatBytes(p.TotalSize))
			} else {
				fmt.Fprintf(app.Err, "\r%s %s", p.Filename, formatBytes(p.Downloaded))
			}
		})
		path, err = dl.Download(ctx, url, kind)
		fmt.Fprintln(app.Err)
	}
	if err != nil {
		if errors.Is(err, assets.ErrCancelled) {
			fmt.Fprintln(app.Out, WarningStyle.Render("Download cancelled, partial file removed."))
		}
		return err
	}

	final := dl.Progress()
	fmt.Fprintf(app.Out, "%s %s (%s)\n", RenderStatus("ok"), path, formatBytes(final.Downloaded))
	return nil
}

// runWatch prints the model list of a kind whenever its directory changes.
func runWatch(ctx context.Context, app *App) error {
	lib, err := app.library()
	if err != nil {
		return err
	}
	w, err := assets.NewWatcher(lib, 0, app.Logger.With("component", "watcher"))
	if err != nil {
		return NewCommandError("models", "watch", "could not watch the library", err)
	}
	defer w.Close()

	w.OnChange(func(k assets.Kind) {
		printModels(app, lib, k)
	})
	w.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(app.Out, "Watching %s (Ctrl+C to stop)\n", lib.Root)
	<-ctx.Done()
	return nil
}
