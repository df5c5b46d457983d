// Package sse turns chunked upstream byte streams into complete logical frames
// and back again.
//
// Two framings are supported: the text/event-stream convention where a frame
// is terminated by a blank line, and the chat-delta convention where each
// JSON fragment is terminated by a single NUL byte. Splitting happens on the
// raw bytes and text decoding is stateful, so a multi-byte character split
// across two reads decodes the same as if it had arrived in one.
//
// See the event stream format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"strings"
)

// Event represents a single parsed SSE event, i.e. the fields of one
// event-framed Frame.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the event stream format.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the event stream format, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// Retry is the raw value of the "retry:" field, if present.
	Retry string
}

// ParseEvent parses the body of an event-framed frame (the text preceding the
// blank-line delimiter) into its fields. Comment lines are skipped and
// unknown fields are ignored.
func ParseEvent(raw string) Event {
	var ev Event
	hasData := false

	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		var field, value string
		if before, after, ok := strings.Cut(line, ":"); ok {
			field = before
			// A single space after the colon is not part of the value.
			value = strings.TrimPrefix(after, " ")
		} else {
			// Line with no colon: the entire line is the field name with
			// an empty value.
			field = line
		}

		switch field {
		case "data":
			if hasData {
				ev.Data += "\n"
			}
			ev.Data += value
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		case "retry":
			ev.Retry = value
		}
	}

	return ev
}

// Encode renders the event back into a frame body without the trailing
// delimiter.
func (e Event) Encode() string {
	var b strings.Builder

	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(e.ID)
		b.WriteByte('\n')
	}
	if e.Type != "" {
		b.WriteString("event: ")
		b.WriteString(e.Type)
		b.WriteByte('\n')
	}
	if e.Retry != "" {
		b.WriteString("retry: ")
		b.WriteString(e.Retry)
		b.WriteByte('\n')
	}
	for line := range strings.SplitSeq(e.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return strings.TrimSuffix(b.String(), "\n")
}
