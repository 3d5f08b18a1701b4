// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for levchat.
//
// Command: chat (also the default when no command is given)
//
// Examples:
//   levchat chat                         Start a new chat
//   levchat chat --chat <id>             Continue a saved chat
//   levchat chat --server ws://host:port Use another inference server
//   levchat chat --strict                Reject malformed control frames
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new                Start a new chat
//   /chats              List saved chats
//   /open N|ID          Open a chat by list number or id
//   /rename NAME        Rename the current chat
//   /delete [N|ID]      Delete a chat (default: current)
//   /history            Show the current conversation
//   /status, /s         Show session status
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/config"
	"github.com/jeranaias/levchat/internal/history"
	"github.com/jeranaias/levchat/internal/logging"
	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/session"
)

const promptText = "levchat> "

type chatOptions struct {
	chatID string
	server string
	strict bool
}

func newChatCommand(app *App) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.chatID, "chat", "", "continue the chat with this id")
	cmd.Flags().StringVar(&opts.server, "server", "", "inference server URL (overrides config)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "treat non-JSON text frames as protocol errors")
	return cmd
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader is the part of liner the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// openLiner creates a liner with the saved input history loaded.
func openLiner() (*liner.State, func()) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	historyFile := filepath.Join(dir, "chat_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	return line, func() {
		if err := config.EnsureConfigDir(); err == nil {
			if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}
		line.Close()
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

func runChat(ctx context.Context, app *App, opts chatOptions) error {
	cfg := app.Config
	if opts.server != "" {
		cfg.Server.URL = opts.server
	}
	if opts.strict {
		cfg.Generation.StrictFrames = true
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	client := app.client()
	if err := client.CheckRunning(ctx); err != nil {
		fmt.Fprintf(app.Out, "%s %v\n", WarningStyle.Render("[!!]"), err)
	}

	logger := app.Logger.With("component", "session")
	machine := session.New(
		app.sessionConfig(),
		session.LlamaDialer(client),
		history.WithRetry(store, cfg.History.AppendRetries, cfg.RetryDelay(), logger),
		logger,
	)
	defer machine.Close()

	if opts.chatID != "" {
		if err := machine.SelectChat(ctx, opts.chatID); err != nil {
			return chatError(opts.chatID, err)
		}
	}

	line, closeLine := openLiner()
	defer closeLine()

	repl := newChatREPL(machine, store, line, app.Out, NewRenderer(cfg.UI.Markdown, cfg.UI.WordWrap), cfg.Server.URL)
	repl.logger = app.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ctrl+C outside the prompt stops the reply being generated.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				machine.Cancel()
			case <-ctx.Done():
				return
			}
		}
	}()

	poller := history.NewPoller(store, cfg.PollInterval(), app.Logger.With("component", "poller"))
	poller.OnChange(repl.chatsChanged)
	go poller.Run(ctx)

	return repl.run(ctx)
}

// chatError turns a missing chat into a NotFoundError.
func chatError(id string, err error) error {
	if errors.Is(err, history.ErrChatNotFound) {
		return &NotFoundError{Resource: "chat", ID: id}
	}
	return err
}

// =============================================================================
// REPL
// =============================================================================

type chatREPL struct {
	machine   *session.Machine
	store     history.Store
	in        lineReader
	out       io.Writer
	render    *Renderer
	printer   *turnPrinter
	serverURL string
	started   time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	listed   []model.ChatRef // last /chats output, for numbered access
	seenList bool
	replies  int
}

func newChatREPL(m *session.Machine, store history.Store, in lineReader, out io.Writer, render *Renderer, serverURL string) *chatREPL {
	w := &syncWriter{w: out}
	r := &chatREPL{
		machine:   m,
		store:     store,
		in:        in,
		out:       w,
		render:    render,
		printer:   &turnPrinter{out: w},
		serverURL: serverURL,
		started:   time.Now(),
		logger:    logging.Discard(),
	}
	m.SetChangeCallback(r.printer.handle)
	m.SetErrorCallback(r.reportError)
	return r
}

func (r *chatREPL) run(ctx context.Context) error {
	r.printWelcome()

	for {
		input, err := r.in.Prompt(promptText)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				r.printSummary()
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			cont, err := r.command(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !cont {
				r.printSummary()
				return nil
			}
			continue
		}

		if err := r.submit(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// submit sends a prompt and waits until the reply ends.
func (r *chatREPL) submit(ctx context.Context, prompt string) error {
	ctx = logging.WithChatID(ctx, r.machine.CurrentChatID())
	logging.FromContext(ctx, r.logger).Debug("prompt submitted", "bytes", len(prompt))

	done := r.printer.begin()
	if err := r.machine.Submit(ctx, prompt); err != nil {
		r.printer.abort()
		return err
	}

	select {
	case snap := <-done:
		if snap.State == session.StateCompleted {
			r.mu.Lock()
			r.replies++
			r.mu.Unlock()
		}
		return nil
	case <-ctx.Done():
		r.machine.Cancel()
		return ctx.Err()
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs a slash command and reports whether the REPL continues.
func (r *chatREPL) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch name {
	case "/help", "/h", "/?":
		r.printHelp()

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		if _, err := r.machine.NewChat(ctx); err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Started a new chat."))

	case "/chats", "/ls":
		chats, err := r.store.ListChats(ctx)
		if err != nil {
			return true, err
		}
		r.mu.Lock()
		r.listed = chats
		r.mu.Unlock()
		ChatList(r.out, chats, r.machine.CurrentChatID())

	case "/open", "/o":
		if arg == "" {
			return true, ErrMissingArgument("chat", "/open 2  or  /open <chat id>")
		}
		id := r.resolveChat(arg)
		if err := r.machine.SelectChat(ctx, id); err != nil {
			return true, chatError(id, err)
		}
		r.render.Transcript(r.out, r.machine.Snapshot().Messages)

	case "/rename":
		if arg == "" {
			return true, ErrMissingArgument("name", "/rename Trip planning")
		}
		id := r.machine.CurrentChatID()
		if id == "" {
			return true, errors.New("no chat yet: send a message first")
		}
		if err := r.machine.RenameChat(ctx, id, arg); err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Chat renamed."))

	case "/delete":
		id := r.machine.CurrentChatID()
		if arg != "" {
			id = r.resolveChat(arg)
		}
		if id == "" {
			return true, errors.New("no chat to delete")
		}
		if err := r.machine.DeleteChat(ctx, id); err != nil {
			return true, chatError(id, err)
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Chat deleted."))

	case "/history":
		r.render.Transcript(r.out, r.machine.Snapshot().Messages)

	case "/status", "/s":
		r.printStatus()

	default:
		return true, NewValidationError("command", name, "unknown command, try /help")
	}
	return true, nil
}

// resolveChat maps a number from the last /chats listing to its id.
func (r *chatREPL) resolveChat(arg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(r.listed) {
		return r.listed[n-1].ID
	}
	return arg
}

// =============================================================================
// BACKGROUND NOTICES
// =============================================================================

// chatsChanged is the poller callback. The first report is the initial
// list and is not announced.
func (r *chatREPL) chatsChanged(chats []model.ChatRef) {
	r.mu.Lock()
	first := !r.seenList
	r.seenList = true
	r.mu.Unlock()
	if first {
		return
	}
	fmt.Fprintf(r.out, "%s\n", DimStyle.Render(fmt.Sprintf("[chat list updated: %d chats]", len(chats))))
}

// reportError prints history write failures. Generation failures are
// shown by the printer.
func (r *chatREPL) reportError(err error) {
	var perr *history.PersistenceError
	if errors.As(err, &perr) {
		fmt.Fprintf(r.out, "%s %v\n", WarningStyle.Render("[History]"), err)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *chatREPL) printWelcome() {
	fmt.Fprintf(r.out, "%s %s\n", TitleStyle.UnsetMarginBottom().Render("levchat"), DimStyle.Render(r.serverURL))
	fmt.Fprintln(r.out, DimStyle.Render("Type a message. /help for commands, Ctrl+C stops a reply, Ctrl+D quits."))
	fmt.Fprintln(r.out)
}

func (r *chatREPL) printHelp() {
	cmds := [][2]string{
		{"/new", "Start a new chat"},
		{"/chats", "List saved chats"},
		{"/open N|ID", "Open a chat by list number or id"},
		{"/rename NAME", "Rename the current chat"},
		{"/delete [N|ID]", "Delete a chat (default: current)"},
		{"/history", "Show the current conversation"},
		{"/status", "Show session status"},
		{"/quit", "Exit"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", CommandStyle.Render(fmt.Sprintf("%-16s", c[0])), c[1])
	}
}

func (r *chatREPL) printStatus() {
	snap := r.machine.Snapshot()
	chat := snap.ChatID
	if chat == "" {
		chat = "(not created yet)"
	}
	fmt.Fprintln(r.out, RenderLabel("State", snap.State.String()))
	fmt.Fprintln(r.out, RenderLabel("Chat", chat))
	fmt.Fprintln(r.out, RenderLabel("Messages", strconv.Itoa(len(snap.Messages))))
	fmt.Fprintln(r.out, RenderLabel("Server", r.serverURL))
	if snap.LastError != nil {
		fmt.Fprintln(r.out, RenderLabel("Last error", snap.LastError.Error()))
	}
}

func (r *chatREPL) printSummary() {
	r.mu.Lock()
	replies := r.replies
	r.mu.Unlock()
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d replies in %s", replies, formatDurationShort(time.Since(r.started)))))
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// turnPrinter writes the reply of the current turn as snapshots arrive
// and signals when it ends.
type turnPrinter struct {
	out io.Writer

	mu      sync.Mutex
	active  bool
	printed int
	done    chan session.Snapshot
}

// begin starts a turn and returns the channel receiving its final snapshot.
func (p *turnPrinter) begin() <-chan session.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.printed = 0
	p.done = make(chan session.Snapshot, 1)
	fmt.Fprintf(p.out, "\n%s\n", AssistantHeaderStyle.Render(model.RoleAssistant.DisplayName()))
	return p.done
}

func (p *turnPrinter) abort() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

func (p *turnPrinter) handle(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}

	if msg, ok := s.Pending(); ok {
		p.write(msg.Content)
	}
	if !s.State.Terminal() {
		return
	}

	switch s.State {
	case session.StateCompleted:
		if n := len(s.Messages); n > 0 {
			p.write(s.Messages[n-1].Content)
		}
		fmt.Fprint(p.out, "\n\n")
	case session.StateCancelled:
		fmt.Fprintf(p.out, "\n%s\n\n", WarningStyle.Render("[Cancelled]"))
	case session.StateFailed:
		msg := "generation failed"
		if s.LastError != nil {
			msg = s.LastError.Error()
		}
		fmt.Fprintf(p.out, "\n%s\n\n", ErrorStyle.Render("Error: "+msg))
	}
	p.active = false
	p.done <- s
}

// write prints the part of content not yet shown.
func (p *turnPrinter) write(content string) {
	if len(content) > p.printed {
		fmt.Fprint(p.out, content[p.printed:])
		p.printed = len(content)
	}
}

// syncWriter serializes writes from the REPL and callback goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
