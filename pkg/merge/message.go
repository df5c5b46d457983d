// Package merge folds partial chat message fragments, as produced by a
// token-streaming backend, into one structured message.
//
// Every step is a pure function of (accumulator, fragment): neither input is
// modified and a fresh Message is returned, so intermediate states can be
// kept, compared and replayed.
package merge

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptyFragment is returned when a frame carries no fragment payload.
var ErrEmptyFragment = errors.New("empty fragment")

// ReferencesType is the attachment type carrying a references payload.
const ReferencesType = "references"

// Attachment is a file, link or structured blob attached to a message.
type Attachment struct {
	Type          string `json:"type,omitempty"`
	Title         string `json:"title,omitempty"`
	Data          string `json:"data,omitempty"`
	URL           string `json:"url,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceURL  string `json:"reference_url,omitempty"`
}

// IsReferences reports whether the attachment declares a references payload,
// either by the bare "references" type or a "+references+json"-style media
// type.
func (a Attachment) IsReferences() bool {
	t := strings.ToLower(strings.TrimSpace(a.Type))
	return t == ReferencesType || strings.HasSuffix(t, "references+json")
}

// CustomContent carries the non-text parts of a fragment.
type CustomContent struct {
	Attachments []Attachment    `json:"attachments,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
}

// Fragment is one partial message update. A nil field is absent, which is
// different from an empty value.
type Fragment struct {
	Role          *string        `json:"role,omitempty"`
	Content       *string        `json:"content,omitempty"`
	ResponseID    *string        `json:"responseId,omitempty"`
	ErrorMessage  *string        `json:"errorMessage,omitempty"`
	CustomContent *CustomContent `json:"custom_content,omitempty"`
}

// ParseFragment decodes one chat-delta frame payload.
func ParseFragment(payload []byte) (Fragment, error) {
	var f Fragment
	if len(strings.TrimSpace(string(payload))) == 0 {
		return f, ErrEmptyFragment
	}
	if err := json.Unmarshal(payload, &f); err != nil {
		return f, err
	}
	return f, nil
}

func (f Fragment) attachments() []Attachment {
	if f.CustomContent == nil {
		return nil
	}
	return f.CustomContent.Attachments
}

func (f Fragment) state() json.RawMessage {
	if f.CustomContent == nil {
		return nil
	}
	return f.CustomContent.State
}

// IsTerminal reports whether the fragment carries a definitive role and no
// deltas.
func (f Fragment) IsTerminal() bool {
	return f.Role != nil &&
		f.Content == nil &&
		len(f.attachments()) == 0 &&
		f.state() == nil
}

// References collects the documents and graph nodes cited by a message.
type References struct {
	Docs  []json.RawMessage `json:"docs"`
	Nodes []json.RawMessage `json:"nodes"`
}

// MarshalJSON writes lists that never received an entry as [].
func (r References) MarshalJSON() ([]byte, error) {
	type wire References
	w := wire(r)
	if w.Docs == nil {
		w.Docs = []json.RawMessage{}
	}
	if w.Nodes == nil {
		w.Nodes = []json.RawMessage{}
	}
	return json.Marshal(w)
}

// Message is the accumulated result of all fragments applied so far.
type Message struct {
	Content      *string         `json:"content,omitempty"`
	Role         *string         `json:"role,omitempty"`
	ResponseID   *string         `json:"responseId,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	Attachments  []Attachment    `json:"attachments,omitempty"`
	References   References      `json:"references"`
	State        json.RawMessage `json:"state,omitempty"`
}

// Text returns the content, or "" when no content has arrived.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// RoleName returns the role, or "" when none has arrived.
func (m Message) RoleName() string {
	if m.Role == nil {
		return ""
	}
	return *m.Role
}
