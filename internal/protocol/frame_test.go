// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// LENIENT DECODER TESTS
// =============================================================================

func TestDecoder_Lenient(t *testing.T) {
	dec := NewDecoder(ModeLenient)

	tests := []struct {
		name   string
		frame  Frame
		kind   EventKind
		delta  string
		status string
	}{
		{"binary delta", BinaryFrame([]byte("Hi")), EventTextDelta, "Hi", ""},
		{"binary invalid utf8", BinaryFrame([]byte{'a', 0xff, 'b'}), EventTextDelta, "a�b", ""},
		{"raw text delta", TextFrame(" there"), EventTextDelta, " there", ""},
		{"text that looks like json but is not", TextFrame("{not json"), EventTextDelta, "{not json", ""},
		{"empty text", TextFrame(""), EventTextDelta, "", ""},
		{"bare null stays text", TextFrame("null"), EventTextDelta, "null", ""},
		{"completion", TextFrame(`{"status":"completed"}`), EventCompletion, "", "completed"},
		{"completion with exit code", TextFrame(`{"job_id":"j1","status":"completed with status: exit 0"}`), EventCompletion, "", "completed with status: exit 0"},
		{"running status", TextFrame(`{"status":"started"}`), EventControlStatus, "", "started"},
		{"object without status", TextFrame(`{"foo":1}`), EventControlStatus, "", ""},
		{"non-string status", TextFrame(`{"status":7}`), EventControlStatus, "", ""},
		{"number is swallowed as status", TextFrame("42"), EventControlStatus, "", ""},
		{"quoted string is swallowed as status", TextFrame(`"completed"`), EventControlStatus, "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := dec.Decode(tc.frame)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.delta, ev.Delta)
			assert.Equal(t, tc.status, ev.Status)
		})
	}
}

func TestDecoder_ZeroValueIsLenient(t *testing.T) {
	var dec Decoder

	ev, err := dec.Decode(TextFrame(`{"status":"completed"}`))
	require.NoError(t, err)
	assert.True(t, ev.IsTerminal())

	ev, err = dec.Decode(TextFrame("plain"))
	require.NoError(t, err)
	assert.Equal(t, EventTextDelta, ev.Kind)
}

func TestDecoder_JobID(t *testing.T) {
	ev, err := NewDecoder(ModeLenient).Decode(TextFrame(`{"job_id":"abc","status":"running"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", ev.JobID)
	assert.False(t, ev.IsTerminal())
}

func TestDecoder_CustomMarker(t *testing.T) {
	dec := Decoder{CompletionMarker: "done"}

	ev, err := dec.Decode(TextFrame(`{"status":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, EventCompletion, ev.Kind)

	ev, err = dec.Decode(TextFrame(`{"status":"completed"}`))
	require.NoError(t, err)
	assert.Equal(t, EventControlStatus, ev.Kind)
}

// =============================================================================
// STRICT DECODER TESTS
// =============================================================================

func TestDecoder_Strict(t *testing.T) {
	dec := NewDecoder(ModeStrict)

	ev, err := dec.Decode(BinaryFrame([]byte(`{"status":"completed"}`)))
	require.NoError(t, err)
	assert.Equal(t, EventTextDelta, ev.Kind, "binary frames are always deltas")

	ev, err = dec.Decode(TextFrame(` {"status":"completed"} `))
	require.NoError(t, err)
	assert.Equal(t, EventCompletion, ev.Kind)

	rejected := []string{"raw text", "42", `"completed"`, `{"foo":1}`, `{"status":1}`, `{"status":`, ""}
	for _, payload := range rejected {
		_, err := dec.Decode(TextFrame(payload))
		require.Error(t, err, "payload %q", payload)
		assert.True(t, errors.Is(err, ErrMalformedControl))

		var perr *ProtocolError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, []byte(payload), perr.Payload)
	}
}

func TestDecoder_UnknownFrameKind(t *testing.T) {
	_, err := NewDecoder(ModeLenient).Decode(Frame{Kind: FrameKind(9), Data: []byte("x")})
	assert.ErrorIs(t, err, ErrMalformedControl)
}

func TestDecoder_Concatenation(t *testing.T) {
	dec := NewDecoder(ModeLenient)
	frames := []Frame{
		BinaryFrame([]byte("Hel")),
		TextFrame("lo"),
		TextFrame(`{"status":"running"}`),
		BinaryFrame([]byte(", world")),
	}

	var got string
	for _, f := range frames {
		ev, err := dec.Decode(f)
		require.NoError(t, err)
		if ev.Kind == EventTextDelta {
			got += ev.Delta
		}
	}
	assert.Equal(t, "Hello, world", got)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "text", FrameText.String())
	assert.Equal(t, "binary", FrameBinary.String())
	assert.Equal(t, "delta", EventTextDelta.String())
	assert.Equal(t, "status", EventControlStatus.String())
	assert.Equal(t, "completion", EventCompletion.String())
	assert.Equal(t, "strict", ModeStrict.String())
	assert.Equal(t, "lenient", ModeLenient.String())
}
