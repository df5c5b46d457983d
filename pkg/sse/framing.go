package sse

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Frame is one complete delimited unit of a streamed protocol.
type Frame struct {
	// Raw is the text preceding the delimiter.
	Raw string

	// Payload is the JSON carried by the frame, or nil when the frame carries
	// no valid JSON. For event framing it is the "data:" field, for chat
	// framing it is the whole frame.
	Payload json.RawMessage
}

// Framing describes a delimiter convention.
type Framing struct {
	name      string
	delimiter []byte
	payload   func(raw string) []byte
	errFrame  func(msg string) []byte
}

// EventFraming is the text/event-stream convention: frames end with a blank
// line.
var EventFraming = Framing{
	name:      "event",
	delimiter: []byte("\n\n"),
	payload: func(raw string) []byte {
		return []byte(ParseEvent(raw).Data)
	},
	errFrame: func(msg string) []byte {
		body, _ := json.Marshal(map[string]string{"error": msg})
		return []byte("data: " + string(body))
	},
}

// ChatFraming is the chat-delta convention: JSON fragments each terminated
// by a NUL byte. Errors are reported as a fragment carrying errorMessage so
// that they fold into the assembled message like any other fragment.
var ChatFraming = Framing{
	name:      "chat",
	delimiter: []byte{0},
	payload: func(raw string) []byte {
		return []byte(strings.TrimSpace(raw))
	},
	errFrame: func(msg string) []byte {
		body, _ := json.Marshal(map[string]string{"errorMessage": msg})
		return body
	},
}

// Name returns a short label for logs and metrics.
func (f Framing) Name() string {
	return f.name
}

// Delimiter returns a copy of the frame delimiter.
func (f Framing) Delimiter() []byte {
	return bytes.Clone(f.delimiter)
}

// Frame builds a Frame from a frame body, extracting the JSON payload when
// there is one. Raw keeps the body's bytes as received; only the payload is
// decoded, with invalid UTF-8 replaced by U+FFFD.
func (f Framing) Frame(raw string) Frame {
	fr := Frame{Raw: raw}
	if f.payload == nil {
		return fr
	}
	p := f.payload(raw)
	if len(p) == 0 {
		return fr
	}
	if !utf8.Valid(p) {
		decoded, err := unicode.UTF8.NewDecoder().Bytes(p)
		if err != nil {
			return fr
		}
		p = decoded
	}
	if json.Valid(p) {
		fr.Payload = json.RawMessage(p)
	}
	return fr
}

// Encode renders a frame body followed by the delimiter.
func (f Framing) Encode(raw string) []byte {
	out := make([]byte, 0, len(raw)+len(f.delimiter))
	out = append(out, raw...)
	return append(out, f.delimiter...)
}

// ErrorFrame renders the synthetic terminal error frame for this framing,
// delimiter included.
func (f Framing) ErrorFrame(msg string) []byte {
	return append(f.errFrame(msg), f.delimiter...)
}
