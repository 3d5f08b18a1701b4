// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/levchat/internal/history"
	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/protocol"
	"github.com/jeranaias/levchat/internal/stream"
	"github.com/jeranaias/levchat/internal/util"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the state machine.
type Config struct {
	// Temperature sent with every request (default: 0.7)
	Temperature float64

	// MaxTokens sent with every request (default: 1024)
	MaxTokens int

	// Decoder classifies inbound frames (default: lenient)
	Decoder protocol.Decoder

	// ChatNameWidth is the display width of names derived from the first
	// prompt (default: 40)
	ChatNameWidth int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Temperature:   protocol.DefaultTemperature,
		MaxTokens:     protocol.DefaultMaxTokens,
		Decoder:       protocol.NewDecoder(protocol.ModeLenient),
		ChatNameWidth: model.DefaultNameWidth,
	}
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine is the streaming chat session state machine. It is safe for
// concurrent use.
type Machine struct {
	cfg    Config
	dialer Dialer
	store  history.Store
	logger *slog.Logger
	writer *writer

	ctx    context.Context
	cancel context.CancelFunc

	// switchMu serializes every change of the current chat, including the
	// lazy creation in the submit goroutine. Acquired before mu.
	switchMu sync.Mutex

	mu      sync.Mutex
	state   State
	gen     uint64
	conv    *model.Conversation
	unnamed string // chat awaiting its name from the first prompt
	acc     *stream.Accumulator
	conn    Connection
	lastErr error
	closed  bool

	// Callbacks
	onChange func(Snapshot)
	onError  func(error)
}

// New creates a state machine with no current chat. The first submit
// creates one.
func New(cfg Config, dialer Dialer, store history.Store, logger *slog.Logger) *Machine {
	defaults := DefaultConfig()
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ChatNameWidth <= 0 {
		cfg.ChatNameWidth = defaults.ChatNameWidth
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		cfg:    cfg,
		dialer: dialer,
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conv:   model.NewConversation(""),
	}
	m.writer = newWriter(m.writeFailed)
	return m
}

// =============================================================================
// CALLBACKS
// =============================================================================

// SetChangeCallback sets the function called after every state or content
// change. It runs outside the machine lock and may call back into the
// machine.
func (m *Machine) SetChangeCallback(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetErrorCallback sets the function called with non-fatal errors:
// persistence failures, connection errors and protocol violations. It may
// be called from any goroutine.
func (m *Machine) SetErrorCallback(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *Machine) notify(snaps ...Snapshot) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn == nil {
		return
	}
	for _, s := range snaps {
		fn(s)
	}
}

func (m *Machine) reportError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (m *Machine) writeFailed(op string, err error, report bool) {
	m.logger.Error("history write failed", "op", op, "err", err)
	if report {
		// Off the writer goroutine: the callback may queue more writes.
		go m.reportError(err)
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentChatID returns the id of the current chat, or "" before the first
// chat has been created.
func (m *Machine) CurrentChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv.ChatID()
}

// Snapshot returns a consistent copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:      m.state,
		ChatID:     m.conv.ChatID(),
		Generation: m.gen,
		Messages:   m.conv.Messages(),
		LastError:  m.lastErr,
	}
}

// settleLocked records a terminal state and returns to Idle, returning
// the snapshots of both transitions.
func (m *Machine) settleLocked(terminal State) []Snapshot {
	m.state = terminal
	first := m.snapshotLocked()
	m.state = StateIdle
	m.acc = nil
	return []Snapshot{first, m.snapshotLocked()}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit starts a generation for prompt and returns once the machine is
// Connecting. The rest of the exchange runs in the background and is
// reported through the callbacks.
func (m *Machine) Submit(ctx context.Context, prompt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := strings.TrimSpace(prompt)
	if text == "" {
		return ErrEmptyPrompt
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrBusy
	}

	conv := m.conv
	msg := model.NewUserMessage(conv.ChatID(), text, time.Now())
	if err := conv.Append(msg); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.lastErr = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("generation started", "chat_id", msg.ChatID, "generation", gen, "prompt_bytes", len(text))
	m.notify(snap)

	go m.run(gen, conv, msg)
	return nil
}

// run performs the exchange for one generation.
func (m *Machine) run(gen uint64, conv *model.Conversation, msg model.Message) {
	chatID, err := m.ensureChat(conv, msg.Content)
	if err != nil {
		m.fail(gen, err)
		return
	}

	// The user message is durable before anything is sent.
	msg.ChatID = chatID
	if err := m.persistWait("append user message", chatID, msg); err != nil {
		m.logger.Warn("user message not persisted", "chat_id", chatID, "generation", gen, "err", err)
	}

	if !m.isCurrent(gen) {
		m.logger.Debug("generation superseded before dial", "generation", gen)
		return
	}

	conn, err := m.dialer.Dial(m.ctx)
	if err != nil {
		m.fail(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		m.logger.Debug("discarding late connection", "generation", gen)
		conn.Close()
		return
	}

	// Placeholder, transition and request send happen in this order under
	// the lock, so no frame can be handled before the placeholder exists.
	if err := conv.AppendPlaceholder(time.Now()); err != nil {
		m.mu.Unlock()
		conn.Close()
		m.fail(gen, fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		return
	}
	m.acc = stream.NewAccumulator()
	m.conn = conn
	m.state = StateStreaming
	req := protocol.NewGenerationRequest(msg.Content, m.cfg.Temperature, m.cfg.MaxTokens)
	if err := conn.SendRequest(req); err != nil {
		m.mu.Unlock()
		m.fail(gen, err)
		return
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("request sent", "chat_id", chatID, "generation", gen)
	m.notify(snap)

	m.readLoop(gen, conn)
}

// ensureChat returns the chat the conversation belongs to, creating it on
// the first prompt. A freshly created chat, or one created by NewChat that
// has not been named yet, is renamed from the prompt exactly once.
func (m *Machine) ensureChat(conv *model.Conversation, prompt string) (string, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	chatID := conv.ChatID()
	active := m.conv == conv
	rename := chatID != "" && chatID == m.unnamed
	if rename {
		m.unnamed = ""
	}
	m.mu.Unlock()

	if chatID == "" {
		if !active {
			return "", errors.New("conversation was replaced before its chat was created")
		}
		var id string
		err := m.enqueueWait(context.Background(), "create chat", "", func(ctx context.Context) error {
			var err error
			id, err = m.store.CreateChat(ctx, model.DefaultChatName(time.Now()))
			return err
		})
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		conv.SetChatID(id)
		m.mu.Unlock()

		m.logger.Info("chat created", "chat_id", id)
		chatID = id
		rename = true
	}

	if rename {
		name := model.ChatNameFromPrompt(prompt, m.cfg.ChatNameWidth)
		m.enqueue(writeJob{
			op:     "rename chat",
			report: true,
			run: func(ctx context.Context) error {
				return m.store.RenameChat(ctx, chatID, name)
			},
		})
	}
	return chatID, nil
}

// =============================================================================
// FRAME HANDLING
// =============================================================================

// readLoop delivers the frames of one connection in arrival order.
func (m *Machine) readLoop(gen uint64, conn Connection) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.fail(gen, err)
			return
		}
		if done := m.handleFrame(gen, frame); done {
			return
		}
	}
}

// handleFrame applies one frame and reports whether the reader should stop.
func (m *Machine) handleFrame(gen uint64, frame protocol.Frame) bool {
	m.mu.Lock()
	if gen != m.gen || m.state != StateStreaming {
		m.mu.Unlock()
		m.logger.Debug("dropping stale frame", "generation", gen, "kind", frame.Kind.String())
		return true
	}

	ev, err := m.cfg.Decoder.Decode(frame)
	if err != nil {
		m.mu.Unlock()
		m.fail(gen, fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		return true
	}

	switch ev.Kind {
	case protocol.EventTextDelta:
		if _, err := m.acc.Apply(m.conv, ev.Delta); err != nil {
			m.mu.Unlock()
			m.fail(gen, fmt.Errorf("%w: %w", ErrProtocolViolation, err))
			return true
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return false

	case protocol.EventControlStatus:
		m.mu.Unlock()
		m.logger.Debug("status", "generation", gen, "status", ev.Status, "job_id", ev.JobID)
		return false

	case protocol.EventCompletion:
		m.complete(gen, ev)
		return true
	}

	m.mu.Unlock()
	return false
}

// complete finalizes the reply. Called with mu held; releases it.
func (m *Machine) complete(gen uint64, ev protocol.Event) {
	final, err := m.conv.Finalize()
	if err != nil {
		m.mu.Unlock()
		m.fail(gen, fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		return
	}
	stats := m.acc.Stats()
	conn := m.conn
	m.conn = nil
	chatID := m.conv.ChatID()
	snaps := m.settleLocked(StateCompleted)

	// Enqueued under the lock so a following chat switch cannot reorder it.
	m.enqueue(writeJob{
		op:     "append assistant message",
		report: true,
		run: func(ctx context.Context) error {
			_, err := m.store.AppendMessage(ctx, chatID, final)
			return err
		},
	})
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.logger.Info("generation completed",
		"chat_id", chatID, "generation", gen, "job_id", ev.JobID,
		"deltas", stats.Deltas, "bytes", stats.Bytes, "elapsed", stats.Elapsed)
	m.notify(snaps...)
}

// fail ends generation gen with err. Stale failures are ignored.
func (m *Machine) fail(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || !m.state.Busy() {
		m.mu.Unlock()
		m.logger.Debug("ignoring stale error", "generation", gen, "err", err)
		return
	}

	m.conv.Fail(err.Error())
	m.lastErr = err
	conn := m.conn
	m.conn = nil
	chatID := m.conv.ChatID()
	snaps := m.settleLocked(StateFailed)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.logger.Error("generation failed", "chat_id", chatID, "generation", gen, "err", err)
	m.notify(snaps...)
	m.reportError(err)
}

func (m *Machine) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.state == StateConnecting
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel stops the generation in flight. While Streaming it sends the
// cancel byte and closes the connection without waiting for an
// acknowledgement; while Connecting it abandons the pending dial. Partial
// content stays visible, marked cancelled. It reports whether anything
// was cancelled.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	conn, snaps, ok := m.cancelLocked()
	m.mu.Unlock()
	if !ok {
		return false
	}
	if conn != nil {
		conn.Close()
	}
	m.notify(snaps...)
	return true
}

// cancelLocked performs the cancellation and returns the connection the
// caller must close after releasing the lock.
func (m *Machine) cancelLocked() (Connection, []Snapshot, bool) {
	switch m.state {
	case StateStreaming:
		conn := m.conn
		if conn != nil {
			if err := conn.SendCancel(); err != nil {
				m.logger.Warn("cancel signal not sent", "generation", m.gen, "err", err)
			}
		}
		m.logger.Info("generation cancelled", "chat_id", m.conv.ChatID(), "generation", m.gen)
		m.gen++
		m.conn = nil
		m.conv.Abandon()
		return conn, m.settleLocked(StateCancelled), true

	case StateConnecting:
		m.logger.Info("generation cancelled before connect", "chat_id", m.conv.ChatID(), "generation", m.gen)
		m.gen++
		m.conv.Abandon()
		return nil, m.settleLocked(StateCancelled), true

	default:
		return nil, nil, false
	}
}

// =============================================================================
// CHAT MANAGEMENT
// =============================================================================

// NewChat creates an empty chat and makes it current. A generation in
// flight is cancelled first. The chat is renamed from its first prompt.
func (m *Machine) NewChat(ctx context.Context) (string, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return "", err
	}
	m.Cancel()

	id, err := m.createChat(ctx)
	if err != nil {
		return "", err
	}
	m.switchTo(model.NewConversation(id), id)
	m.logger.Info("chat created", "chat_id", id)
	return id, nil
}

// SelectChat loads an existing chat and makes it current. A generation in
// flight is cancelled first.
func (m *Machine) SelectChat(ctx context.Context, id string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	m.Cancel()

	chats, err := m.store.ListChats(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, c := range chats {
		if c.ID == id {
			found = true
			break
		}
	}
	if !found {
		return &history.PersistenceError{Op: "select chat", ChatID: id, Err: history.ErrChatNotFound}
	}

	msgs, err := m.store.LoadMessages(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	unnamed := m.unnamed
	m.mu.Unlock()
	if unnamed != id {
		unnamed = ""
	}
	m.switchTo(model.LoadConversation(id, msgs), unnamed)
	m.logger.Info("chat selected", "chat_id", id, "messages", len(msgs))
	return nil
}

// DeleteChat deletes a chat and its messages. Deleting the current chat
// cancels any generation in flight and switches to a newly created empty
// chat before returning; if that creation fails there is no current chat.
func (m *Machine) DeleteChat(ctx context.Context, id string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	if id == "" {
		return &history.PersistenceError{Op: "delete chat", Err: history.ErrChatNotFound}
	}
	current := m.CurrentChatID() == id
	if current {
		m.Cancel()
	}

	err := m.enqueueWait(ctx, "delete chat", id, func(ctx context.Context) error {
		return m.store.DeleteChat(ctx, id)
	})
	if err != nil {
		return err
	}
	m.logger.Info("chat deleted", "chat_id", id)
	if !current {
		return nil
	}

	newID, err := m.createChat(ctx)
	if err != nil {
		m.switchTo(model.NewConversation(""), "")
		return err
	}
	m.switchTo(model.NewConversation(newID), newID)
	m.logger.Info("chat created", "chat_id", newID, "replaces", id)
	return nil
}

// RenameChat renames a chat. An explicit name replaces the automatic one.
func (m *Machine) RenameChat(ctx context.Context, id, name string) error {
	name = util.NormalizeLine(name)
	if name == "" {
		return ErrEmptyName
	}
	if err := m.checkOpen(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.unnamed == id {
		m.unnamed = ""
	}
	m.mu.Unlock()

	return m.enqueueWait(ctx, "rename chat", id, func(ctx context.Context) error {
		return m.store.RenameChat(ctx, id, name)
	})
}

func (m *Machine) createChat(ctx context.Context) (string, error) {
	var id string
	err := m.enqueueWait(ctx, "create chat", "", func(ctx context.Context) error {
		var err error
		id, err = m.store.CreateChat(ctx, model.DefaultChatName(time.Now()))
		return err
	})
	return id, err
}

// switchTo replaces the current conversation. A generation started after
// the caller's cancellation is cancelled here under the same lock.
func (m *Machine) switchTo(conv *model.Conversation, unnamed string) {
	m.mu.Lock()
	conn, snaps, _ := m.cancelLocked()
	m.conv = conv
	m.unnamed = unnamed
	m.state = StateIdle
	m.lastErr = nil
	snaps = append(snaps, m.snapshotLocked())
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.notify(snaps...)
}

func (m *Machine) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (m *Machine) enqueue(job writeJob) {
	if !m.writer.enqueue(job) {
		m.logger.Warn("history write dropped after close", "op", job.op)
	}
}

// enqueueWait runs fn on the writer and waits for its result. Errors are
// returned to the caller rather than reported.
func (m *Machine) enqueueWait(ctx context.Context, op, chatID string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if !m.writer.enqueue(writeJob{op: op, run: fn, done: done}) {
		return ErrClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &history.PersistenceError{Op: op, ChatID: chatID, Err: ctx.Err()}
	}
}

// persistWait appends msg and waits for the write. Failures are reported
// through the error callback.
func (m *Machine) persistWait(op, chatID string, msg model.Message) error {
	done := make(chan error, 1)
	ok := m.writer.enqueue(writeJob{
		op:     op,
		report: true,
		done:   done,
		run: func(ctx context.Context) error {
			_, err := m.store.AppendMessage(ctx, chatID, msg)
			return err
		},
	})
	if !ok {
		return ErrClosed
	}
	return <-done
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// Close cancels any generation in flight, waits for queued history writes
// and stops the machine. It does not close the store.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn, snaps, _ := m.cancelLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.notify(snaps...)
	m.cancel()
	m.writer.close()
	m.logger.Debug("session closed")
	return nil
}
