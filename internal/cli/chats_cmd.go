// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats_cmd.go - Saved chat management.
//
// Command: chats [subcommand]
//
// Subcommands:
//   list             List saved chats (oldest first)
//   show ID          Print a chat transcript
//   rename ID NAME   Rename a chat
//   delete ID        Delete a chat and its messages
//   export ID        Write a chat to a Markdown or JSON file

package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/export"
	"github.com/jeranaias/levchat/internal/history"
	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/util"
)

func newChatsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"chat-history"},
		Short:   "Manage saved chats",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved chats",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), app, func(store history.Store) error {
				chats, err := store.ListChats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if chats == nil {
						chats = []model.ChatRef{}
					}
					return outputJSON(app.Out, chats)
				}
				ChatList(app.Out, chats, "")
				return nil
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output JSON")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a chat transcript",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, app, func(store history.Store) error {
				chat, err := findChat(ctx, store, args[0])
				if err != nil {
					return err
				}
				msgs, err := store.LoadMessages(ctx, chat.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, TitleStyle.Render(chat.Name))
				NewRenderer(app.Config.UI.Markdown, app.Config.UI.WordWrap).Transcript(app.Out, msgs)
				return nil
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a chat",
		Args:  minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := util.NormalizeLine(strings.Join(args[1:], " "))
			if name == "" {
				return NewValidationError("name", "", "must not be empty")
			}
			ctx := cmd.Context()
			return withStore(ctx, app, func(store history.Store) error {
				if err := store.RenameChat(ctx, args[0], name); err != nil {
					return chatError(args[0], err)
				}
				fmt.Fprintf(app.Out, "%s Renamed to %q\n", RenderStatus("ok"), name)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a chat and its messages",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, app, func(store history.Store) error {
				if err := store.DeleteChat(ctx, args[0]); err != nil {
					return chatError(args[0], err)
				}
				fmt.Fprintf(app.Out, "%s Deleted %s\n", RenderStatus("ok"), args[0])
				return nil
			})
		},
	}

	var (
		format     string
		outPath    string
		noMetadata bool
	)
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a chat to a Markdown or JSON file",
		Long: `Write a chat to a file. The default file name is built from the chat
name and the current time; use -o - to write to standard output.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := export.DefaultOptions()
			opts.IncludeMetadata = !noMetadata
			exp, err := export.ForFormat(format, opts)
			if err != nil {
				return NewValidationError("format", format, err.Error())
			}
			return runExport(cmd.Context(), app, args[0], exp, outPath)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown or json")
	exportCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file, - for stdout")
	exportCmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit the front matter and footer")

	cmd.AddCommand(list, show, rename, del, exportCmd)
	return cmd
}

func runExport(ctx context.Context, app *App, id string, exp export.Exporter, outPath string) error {
	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	chat, err := store.GetChat(ctx, id)
	if err != nil {
		return chatError(id, err)
	}
	msgs, err := store.LoadMessages(ctx, id)
	if err != nil {
		return err
	}
	t := &export.Transcript{Chat: chat, Messages: msgs}

	if outPath == "-" {
		data, err := exp.Export(t)
		if err != nil {
			return err
		}
		_, err = app.Out.Write(data)
		return err
	}
	if outPath == "" {
		outPath = export.FileName(chat, exp, time.Now())
	}
	if err := export.ToFile(t, exp, outPath); err != nil {
		if errors.Is(err, export.ErrNoChat) {
			return &NotFoundError{Resource: "chat", ID: id}
		}
		return NewCommandError("chats", "export", "could not write "+outPath, err)
	}
	fmt.Fprintf(app.Out, "%s Exported %d messages to %s\n", RenderStatus("ok"), len(msgs), outPath)
	return nil
}

// withStore opens the history database for the duration of fn.
func withStore(ctx context.Context, app *App, fn func(history.Store) error) error {
	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// findChat looks a chat up by id.
func findChat(ctx context.Context, store history.Store, id string) (model.ChatRef, error) {
	chats, err := store.ListChats(ctx)
	if err != nil {
		return model.ChatRef{}, err
	}
	i := slices.IndexFunc(chats, func(c model.ChatRef) bool { return c.ID == id })
	if i < 0 {
		return model.ChatRef{}, &NotFoundError{Resource: "chat", ID: id}
	}
	return chats[i], nil
}
