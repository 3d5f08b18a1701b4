// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/levchat/internal/model"
)

func newPendingConversation(t *testing.T) *model.Conversation {
	t.Helper()
	conv := model.NewConversation("c1")
	require.NoError(t, conv.Append(model.NewUserMessage("c1", "Hello", time.Now())))
	require.NoError(t, conv.AppendPlaceholder(time.Now()))
	return conv
}

func TestAccumulator_Concatenation(t *testing.T) {
	conv := newPendingConversation(t)
	acc := NewAccumulator()

	deltas := []string{"The", " quick", "", " brown", " 狐", "\n", "fox"}
	for i, d := range deltas {
		got, err := acc.Apply(conv, d)
		require.NoError(t, err)

		want := strings.Join(deltas[:i+1], "")
		assert.Equal(t, want, got)

		pending, ok := conv.Pending()
		require.True(t, ok)
		assert.Equal(t, want, pending.Content)
	}

	assert.Equal(t, len(deltas), acc.Deltas())
	assert.Equal(t, strings.Join(deltas, ""), acc.Content())
}

func TestAccumulator_HiThere(t *testing.T) {
	conv := newPendingConversation(t)
	acc := NewAccumulator()

	got, err := acc.Apply(conv, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hi", got)

	got, err = acc.Apply(conv, " there")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
}

func TestAccumulator_NoPlaceholder(t *testing.T) {
	acc := NewAccumulator()

	conv := model.NewConversation("c1")
	_, err := acc.Apply(conv, "x")
	assert.ErrorIs(t, err, ErrNoPlaceholder)
	assert.Empty(t, acc.Content(), "rejected deltas are not accumulated")

	_, err = acc.Apply(nil, "x")
	assert.ErrorIs(t, err, ErrNoPlaceholder)
}

func TestAccumulator_Reset(t *testing.T) {
	conv := newPendingConversation(t)
	acc := NewAccumulator()

	_, err := acc.Apply(conv, "abc")
	require.NoError(t, err)

	acc.Reset()
	assert.Empty(t, acc.Content())
	assert.Zero(t, acc.Deltas())
}

func TestAccumulator_Stats(t *testing.T) {
	conv := newPendingConversation(t)
	acc := NewAccumulator()

	_, err := acc.Apply(conv, "")
	require.NoError(t, err)
	_, err = acc.Apply(conv, "héllo")
	require.NoError(t, err)

	stats := acc.Stats()
	assert.Equal(t, 2, stats.Deltas)
	assert.Equal(t, len("héllo"), stats.Bytes)
	assert.GreaterOrEqual(t, stats.Elapsed, stats.FirstDelta)
	assert.GreaterOrEqual(t, stats.BytesPerSecond(), 0.0)
}
