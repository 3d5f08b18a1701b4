// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultCompletionMarker is the substring of a status value that ends a generation.
const DefaultCompletionMarker = "completed"

// =============================================================================
// FRAMES
// =============================================================================

// FrameKind is the WebSocket payload type of an inbound frame.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Frame is one inbound message from the inference process.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// TextFrame returns a text frame holding s.
func TextFrame(s string) Frame {
	return Frame{Kind: FrameText, Data: []byte(s)}
}

// BinaryFrame returns a binary frame holding b.
func BinaryFrame(b []byte) Frame {
	return Frame{Kind: FrameBinary, Data: b}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind classifies a decoded frame.
type EventKind int

const (
	// EventTextDelta carries a fragment of generated text.
	EventTextDelta EventKind = iota + 1
	// EventControlStatus is a status message that does not end the generation.
	EventControlStatus
	// EventCompletion is a status message that ends the generation.
	EventCompletion
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "delta"
	case EventControlStatus:
		return "status"
	case EventCompletion:
		return "completion"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is the result of decoding one frame.
type Event struct {
	Kind EventKind

	// Delta is set for EventTextDelta.
	Delta string

	// Status and JobID are set for status and completion events.
	Status string
	JobID  string
}

// IsTerminal reports whether the event ends the generation.
func (e Event) IsTerminal() bool {
	return e.Kind == EventCompletion
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrMalformedControl is matched by every ProtocolError returned from Decode.
var ErrMalformedControl = errors.New("malformed control frame")

// ProtocolError describes a frame the strict decoder refused.
type ProtocolError struct {
	Reason  string
	Payload []byte
}

func (e *ProtocolError) Error() string {
	payload := e.Payload
	if len(payload) > 64 {
		payload = payload[:64]
	}
	return fmt.Sprintf("%s: %s (payload %q)", ErrMalformedControl, e.Reason, payload)
}

// Is makes errors.Is(err, ErrMalformedControl) true for any ProtocolError.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrMalformedControl
}

// =============================================================================
// DECODER
// =============================================================================

// DecodeMode selects how text frames are disambiguated.
type DecodeMode int

const (
	// ModeLenient parses text frames as JSON first and falls back to a raw
	// delta when parsing fails. Any valid JSON text is a status message,
	// even if it was meant as generated text.
	ModeLenient DecodeMode = iota
	// ModeStrict requires every text frame to be a JSON object with a
	// string "status" field. Binary frames are always deltas.
	ModeStrict
)

// String returns the mode name.
func (m DecodeMode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "lenient"
}

// Decoder classifies frames. The zero value is a lenient decoder using
// DefaultCompletionMarker.
type Decoder struct {
	Mode             DecodeMode
	CompletionMarker string
}

// NewDecoder returns a decoder for the given mode.
func NewDecoder(mode DecodeMode) Decoder {
	return Decoder{Mode: mode, CompletionMarker: DefaultCompletionMarker}
}

// Decode classifies a single frame. It has no side effects. In lenient mode
// it never returns an error.
func (d Decoder) Decode(f Frame) (Event, error) {
	switch f.Kind {
	case FrameBinary:
		return delta(strings.ToValidUTF8(string(f.Data), "�")), nil
	case FrameText:
		if d.Mode == ModeStrict {
			return d.decodeStrict(f.Data)
		}
		return d.decodeLenient(f.Data), nil
	default:
		return Event{}, &ProtocolError{Reason: "unknown frame kind " + f.Kind.String(), Payload: f.Data}
	}
}

func (d Decoder) decodeLenient(data []byte) Event {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return delta(string(data))
	}
	if v == nil {
		// A bare null has no fields to inspect and is kept as text.
		return delta(string(data))
	}
	var status, jobID string
	if obj, ok := v.(map[string]any); ok {
		status, _ = obj["status"].(string)
		jobID, _ = obj["job_id"].(string)
	}
	return d.classify(status, jobID)
}

func (d Decoder) decodeStrict(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, &ProtocolError{Reason: "text frame is not a JSON object", Payload: data}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Event{}, &ProtocolError{Reason: "invalid JSON: " + err.Error(), Payload: data}
	}
	raw, ok := fields["status"]
	if !ok {
		return Event{}, &ProtocolError{Reason: "missing status field", Payload: data}
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil {
		return Event{}, &ProtocolError{Reason: "status is not a string", Payload: data}
	}
	var jobID string
	if rawID, ok := fields["job_id"]; ok {
		_ = json.Unmarshal(rawID, &jobID)
	}
	return d.classify(status, jobID), nil
}

func (d Decoder) classify(status, jobID string) Event {
	marker := d.CompletionMarker
	if marker == "" {
		marker = DefaultCompletionMarker
	}
	kind := EventControlStatus
	if strings.Contains(status, marker) {
		kind = EventCompletion
	}
	return Event{Kind: kind, Status: status, JobID: jobID}
}

func delta(s string) Event {
	return Event{Kind: EventTextDelta, Delta: s}
}
