// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/levchat/internal/history"
	"github.com/jeranaias/levchat/internal/llama"
	"github.com/jeranaias/levchat/internal/model"
	"github.com/jeranaias/levchat/internal/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var errConnClosed = errors.New("use of closed connection")

// =============================================================================
// FAKES
// =============================================================================

// fakeConn is a Connection whose inbound frames are pushed by the test.
type fakeConn struct {
	frames    chan protocol.Frame
	readErrs  chan error
	closed    chan struct{}
	requested chan protocol.GenerationRequest
	closeOnce sync.Once

	mu        sync.Mutex
	cancels   int
	closes    int
	onRequest func(req protocol.GenerationRequest)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:    make(chan protocol.Frame, 64),
		readErrs:  make(chan error, 1),
		closed:    make(chan struct{}),
		requested: make(chan protocol.GenerationRequest, 4),
	}
}

func (c *fakeConn) ReadFrame() (protocol.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.readErrs:
		return protocol.Frame{}, err
	case <-c.closed:
		return protocol.Frame{}, errConnClosed
	}
}

func (c *fakeConn) SendRequest(req protocol.GenerationRequest) error {
	c.mu.Lock()
	hook := c.onRequest
	c.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	c.requested <- req
	return nil
}

func (c *fakeConn) SendCancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(frames ...protocol.Frame) {
	for _, f := range frames {
		c.frames <- f
	}
}

func (c *fakeConn) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) waitRequest(t *testing.T) protocol.GenerationRequest {
	t.Helper()
	select {
	case req := <-c.requested:
		return req
	case <-time.After(waitFor):
		t.Fatal("request not sent")
		return protocol.GenerationRequest{}
	}
}

// connDialer hands out the given connections in order.
type connDialer struct {
	conns chan *fakeConn
	calls atomic.Int32
}

func newConnDialer(conns ...*fakeConn) *connDialer {
	d := &connDialer{conns: make(chan *fakeConn, len(conns))}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *connDialer) Dial(ctx context.Context) (Connection, error) {
	d.calls.Add(1)
	select {
	case c := <-d.conns:
		return c, nil
	default:
		return nil, llama.ErrNotRunning
	}
}

// recorder collects every snapshot and error the machine reports.
type recorder struct {
	mu     sync.Mutex
	snaps  []Snapshot
	errors []error
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.State
	}
	return out
}

func (r *recorder) pendingContents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.snaps {
		if p, ok := s.Pending(); ok && p.Content != "" {
			out = append(out, p.Content)
		}
	}
	return out
}

func (r *recorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

func newMachine(t *testing.T, cfg Config, dialer Dialer, store history.Store) (*Machine, *recorder) {
	t.Helper()
	m := New(cfg, dialer, store, nil)
	rec := &recorder{}
	m.SetChangeCallback(func(s Snapshot) {
		rec.mu.Lock()
		rec.snaps = append(rec.snaps, s)
		rec.mu.Unlock()
	})
	m.SetErrorCallback(func(err error) {
		rec.mu.Lock()
		rec.errors = append(rec.errors, err)
		rec.mu.Unlock()
	})
	t.Cleanup(func() { m.Close() })
	return m, rec
}

func pendingContent(m *Machine) string {
	p, _ := m.Snapshot().Pending()
	return p.Content
}

func storedMessages(t *testing.T, store history.Store, chatID string) []model.Message {
	t.Helper()
	msgs, err := store.LoadMessages(context.Background(), chatID)
	require.NoError(t, err)
	return msgs
}

func completed() protocol.Frame {
	return protocol.TextFrame(`{"status":"completed"}`)
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestMachine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	conn := newFakeConn()

	var persistedBeforeSend atomic.Bool
	conn.onRequest = func(req protocol.GenerationRequest) {
		chats, err := store.ListChats(ctx)
		if err != nil || len(chats) != 1 {
			return
		}
		msgs, err := store.LoadMessages(ctx, chats[0].ID)
		if err == nil && len(msgs) == 1 && msgs[0].IsUser && msgs[0].Content == req.Prompt {
			persistedBeforeSend.Store(true)
		}
	}

	m, rec := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	require.NoError(t, m.Submit(ctx, "Hello"))
	req := conn.waitRequest(t)
	assert.Equal(t, "Hello", req.Prompt)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.True(t, persistedBeforeSend.Load(), "user message must be persisted before the request is sent")
	assert.Equal(t, StateStreaming, m.State())

	conn.push(protocol.BinaryFrame([]byte("Hi")))
	require.Eventually(t, func() bool { return pendingContent(m) == "Hi" }, waitFor, tick)

	conn.push(protocol.TextFrame(" there"))
	require.Eventually(t, func() bool { return pendingContent(m) == "Hi there" }, waitFor, tick)

	conn.push(completed())
	require.Eventually(t, func() bool { return m.State() == StateIdle }, waitFor, tick)

	chatID := m.CurrentChatID()
	require.NotEmpty(t, chatID)
	require.Eventually(t, func() bool { return len(storedMessages(t, store, chatID)) == 2 }, waitFor, tick)

	msgs := storedMessages(t, store, chatID)
	assert.True(t, msgs[0].IsUser)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.False(t, msgs[1].IsUser)
	assert.Equal(t, "Hi there", msgs[1].Content)

	assert.Equal(t, []string{"Hi", "Hi there"}, rec.pendingContents())
	assert.Equal(t, []State{StateConnecting, StateStreaming, StateStreaming, StateStreaming, StateCompleted, StateIdle}, rec.states())
	assert.True(t, conn.isClosed())

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.False(t, snap.Messages[1].Pending)
	assert.NoError(t, snap.LastError)
}

func TestMachine_EmptyPromptIsRejected(t *testing.T) {
	dialer := newConnDialer()
	m, rec := newMachine(t, DefaultConfig(), dialer, history.NewMemoryStore())

	for _, prompt := range []string{"", "   ", "\n\t "} {
		assert.ErrorIs(t, m.Submit(context.Background(), prompt), ErrEmptyPrompt)
	}

	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.Snapshot().Messages)
	assert.Empty(t, rec.states())
	assert.Zero(t, dialer.calls.Load())
}

func TestMachine_SubmitWhileBusy(t *testing.T) {
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "first"))
	assert.ErrorIs(t, m.Submit(context.Background(), "second"), ErrBusy)

	conn.waitRequest(t)
	assert.ErrorIs(t, m.Submit(context.Background(), "third"), ErrBusy)
	assert.Len(t, m.Snapshot().Messages, 2, "user message and placeholder only")
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestMachine_CompletionPersistsOnce(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	require.NoError(t, m.Submit(ctx, "Hello"))
	conn.waitRequest(t)
	gen := m.Snapshot().Generation

	conn.push(protocol.BinaryFrame([]byte("full text")), completed(), completed())
	require.Eventually(t, func() bool { return m.State() == StateIdle }, waitFor, tick)

	// A completion delivered after the session ended changes nothing.
	assert.True(t, m.handleFrame(gen, completed()))
	assert.Equal(t, StateIdle, m.State())

	chatID := m.CurrentChatID()
	require.Eventually(t, func() bool { return len(storedMessages(t, store, chatID)) == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return len(storedMessages(t, store, chatID)) != 2 }, 100*time.Millisecond, tick)

	msgs := storedMessages(t, store, chatID)
	assert.Equal(t, "full text", msgs[1].Content)
	assert.True(t, conn.isClosed())
}

func TestMachine_StatusFramesAreIgnored(t *testing.T) {
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	conn.waitRequest(t)

	conn.push(
		protocol.TextFrame(`{"job_id":"j1","status":"started"}`),
		protocol.BinaryFrame([]byte("a")),
		protocol.TextFrame("42"), // valid JSON, swallowed as a status
		protocol.BinaryFrame([]byte("b")),
	)
	require.Eventually(t, func() bool { return pendingContent(m) == "ab" }, waitFor, tick)
	assert.Equal(t, StateStreaming, m.State())
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestMachine_CancelWhileStreaming(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	conn := newFakeConn()
	m, rec := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	require.NoError(t, m.Submit(ctx, "Hello"))
	conn.waitRequest(t)
	conn.push(protocol.BinaryFrame([]byte("Hi")))
	require.Eventually(t, func() bool { return pendingContent(m) == "Hi" }, waitFor, tick)

	assert.True(t, m.Cancel())
	assert.Equal(t, 1, conn.cancelCount())
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateIdle, m.State())
	assert.Contains(t, rec.states(), StateCancelled)

	before := m.Snapshot()
	require.Len(t, before.Messages, 2)
	assert.Equal(t, "Hi", before.Messages[1].Content)
	assert.True(t, before.Messages[1].Cancelled)

	// Frames that arrive on the old connection are stale.
	conn.push(protocol.BinaryFrame([]byte(" there")), completed())
	assert.Never(t, func() bool {
		s := m.Snapshot()
		return s.State != StateIdle || s.Messages[1].Content != "Hi"
	}, 100*time.Millisecond, tick)

	assert.False(t, m.Cancel(), "nothing left to cancel")
	assert.Equal(t, 1, conn.cancelCount())

	chatID := m.CurrentChatID()
	msgs := storedMessages(t, store, chatID)
	require.Len(t, msgs, 1, "cancelled replies are not persisted")
	assert.True(t, msgs[0].IsUser)
}

func TestMachine_CancelEmptyPlaceholderIsRemoved(t *testing.T) {
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	conn.waitRequest(t)

	assert.True(t, m.Cancel())
	msgs := m.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsUser)
}

func TestMachine_CancelWhileConnecting(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	dialed := make(chan struct{})
	dialer := DialFunc(func(ctx context.Context) (Connection, error) {
		close(dialed)
		<-release
		return conn, nil
	})
	m, rec := newMachine(t, DefaultConfig(), dialer, history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	select {
	case <-dialed:
	case <-time.After(waitFor):
		t.Fatal("dial not started")
	}
	assert.Equal(t, StateConnecting, m.State())

	assert.True(t, m.Cancel())
	assert.Equal(t, StateIdle, m.State())
	assert.Contains(t, rec.states(), StateCancelled)

	close(release)
	require.Eventually(t, conn.isClosed, waitFor, tick)
	assert.Zero(t, conn.cancelCount(), "no cancel byte without a live connection")
	assert.Empty(t, conn.requested)
	assert.Equal(t, StateIdle, m.State())
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestMachine_DialFailure(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	m, rec := newMachine(t, DefaultConfig(), newConnDialer(), store)

	require.NoError(t, m.Submit(ctx, "Hello"))
	require.Eventually(t, func() bool { return len(rec.errs()) == 1 }, waitFor, tick)

	snap := m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.ErrorIs(t, snap.LastError, llama.ErrNotRunning)
	assert.Contains(t, rec.states(), StateFailed)

	require.Len(t, snap.Messages, 2)
	assert.True(t, snap.Messages[1].Failed())
	assert.False(t, snap.Messages[1].IsUser)

	msgs := storedMessages(t, store, snap.ChatID)
	require.Len(t, msgs, 1, "only the user message is persisted")
}

func TestMachine_ConnectionLostKeepsPartialText(t *testing.T) {
	store := history.NewMemoryStore()
	conn := newFakeConn()
	m, rec := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	conn.waitRequest(t)
	conn.push(protocol.BinaryFrame([]byte("Hi")))
	require.Eventually(t, func() bool { return pendingContent(m) == "Hi" }, waitFor, tick)

	conn.readErrs <- errors.New("connection reset by peer")
	require.Eventually(t, func() bool { return m.State() == StateIdle }, waitFor, tick)

	snap := m.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hi", snap.Messages[1].Content)
	assert.Equal(t, "connection reset by peer", snap.Messages[1].Err)
	assert.True(t, conn.isClosed())
	assert.Len(t, rec.errs(), 1)
	assert.Len(t, storedMessages(t, store, snap.ChatID), 1)
}

func TestMachine_StrictModeProtocolViolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decoder = protocol.NewDecoder(protocol.ModeStrict)
	conn := newFakeConn()
	m, _ := newMachine(t, cfg, newConnDialer(conn), history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	conn.waitRequest(t)
	conn.push(protocol.BinaryFrame([]byte("Hi")), protocol.TextFrame("raw text"))

	require.Eventually(t, func() bool { return m.Snapshot().LastError != nil }, waitFor, tick)
	snap := m.Snapshot()
	assert.ErrorIs(t, snap.LastError, ErrProtocolViolation)
	assert.ErrorIs(t, snap.LastError, protocol.ErrMalformedControl)
	assert.Equal(t, "Hi", snap.Messages[1].Content)
}

// =============================================================================
// CHAT MANAGEMENT TESTS
// =============================================================================

func TestMachine_ChatNamedFromFirstPrompt(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	first, second := newFakeConn(), newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(first, second), store)

	require.NoError(t, m.Submit(ctx, "What is\na goroutine?"))
	first.waitRequest(t)
	first.push(completed())
	require.Eventually(t, func() bool { return m.State() == StateIdle }, waitFor, tick)

	require.NoError(t, m.Submit(ctx, "And a channel?"))
	second.waitRequest(t)
	second.push(completed())
	require.Eventually(t, func() bool { return m.State() == StateIdle }, waitFor, tick)

	require.Eventually(t, func() bool {
		return len(storedMessages(t, store, m.CurrentChatID())) == 4
	}, waitFor, tick)

	chats, err := store.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "What is a goroutine?", chats[0].Name)
}

func TestMachine_NewChatIsNamedOnFirstPrompt(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	id, err := m.NewChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, m.CurrentChatID())

	require.NoError(t, m.Submit(ctx, "Plan a trip"))
	conn.waitRequest(t)

	require.Eventually(t, func() bool {
		chats, err := store.ListChats(ctx)
		return err == nil && len(chats) == 1 && chats[0].Name == "Plan a trip"
	}, waitFor, tick)
}

func TestMachine_DeleteCurrentChat(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), store)

	require.NoError(t, m.Submit(ctx, "Hello"))
	conn.waitRequest(t)
	old := m.CurrentChatID()
	require.NotEmpty(t, old)

	require.NoError(t, m.DeleteChat(ctx, old))

	current := m.CurrentChatID()
	require.NotEmpty(t, current)
	assert.NotEqual(t, old, current)
	assert.Equal(t, 1, conn.cancelCount(), "in-flight generation is cancelled first")
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.Snapshot().Messages)

	chats, err := store.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, current, chats[0].ID)
	assert.Empty(t, storedMessages(t, store, current))
	assert.Empty(t, storedMessages(t, store, old))
}

func TestMachine_DeleteOtherChat(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(), store)

	other, err := store.CreateChat(ctx, "other")
	require.NoError(t, err)
	current, err := m.NewChat(ctx)
	require.NoError(t, err)

	require.NoError(t, m.DeleteChat(ctx, other))
	assert.Equal(t, current, m.CurrentChatID())

	assert.ErrorIs(t, m.DeleteChat(ctx, other), history.ErrChatNotFound)
}

func TestMachine_SelectChat(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	m, rec := newMachine(t, DefaultConfig(), newConnDialer(), store)

	id, err := store.CreateChat(ctx, "saved")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, id, model.NewUserMessage(id, "q", time.Now()))
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, id, model.NewAssistantMessage(id, "a", time.Now()))
	require.NoError(t, err)

	require.NoError(t, m.SelectChat(ctx, id))
	snap := m.Snapshot()
	assert.Equal(t, id, snap.ChatID)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a", snap.Messages[1].Content)
	assert.NotEmpty(t, rec.states())

	assert.ErrorIs(t, m.SelectChat(ctx, "missing"), history.ErrChatNotFound)
	assert.Equal(t, id, m.CurrentChatID())
}

func TestMachine_RenameChat(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(), store)

	id, err := m.NewChat(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, m.RenameChat(ctx, id, "  \n"), ErrEmptyName)
	require.NoError(t, m.RenameChat(ctx, id, "  My\nchat "))

	chats, err := store.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "My chat", chats[0].Name)

	assert.ErrorIs(t, m.RenameChat(ctx, "missing", "x"), history.ErrChatNotFound)
}

// =============================================================================
// SHUTDOWN TESTS
// =============================================================================

func TestMachine_Close(t *testing.T) {
	conn := newFakeConn()
	m, _ := newMachine(t, DefaultConfig(), newConnDialer(conn), history.NewMemoryStore())

	require.NoError(t, m.Submit(context.Background(), "Hello"))
	conn.waitRequest(t)

	require.NoError(t, m.Close())
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateIdle, m.State())
	assert.ErrorIs(t, m.Submit(context.Background(), "again"), ErrClosed)
	_, err := m.NewChat(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Close())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateConnecting.Busy())
	assert.False(t, StateIdle.Busy())
	assert.True(t, StateFailed.Terminal())
}
