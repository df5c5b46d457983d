package merge

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Apply folds one fragment into acc and returns the new accumulator.
//
// Rules, in order:
//  1. errorMessage, role and responseId replace the previous value.
//  2. content is appended.
//  3. attachments are appended in fragment order.
//  4. references attachments among them have their docs and nodes appended
//     to References.
//  5. state replaces the previous snapshot wholesale.
func Apply(acc Message, f Fragment) Message {
	next := acc

	if f.ErrorMessage != nil {
		next.ErrorMessage = stringPtr(*f.ErrorMessage)
	}
	if f.Role != nil {
		next.Role = stringPtr(*f.Role)
	}
	if f.ResponseID != nil {
		next.ResponseID = stringPtr(*f.ResponseID)
	}

	if f.Content != nil {
		next.Content = stringPtr(acc.Text() + *f.Content)
	}

	if atts := f.attachments(); len(atts) > 0 {
		next.Attachments = append(slices.Clone(acc.Attachments), atts...)

		for _, att := range atts {
			if !att.IsReferences() {
				continue
			}
			refs, ok := parseReferences(att.Data)
			if !ok {
				continue
			}
			next.References = next.References.with(refs)
		}
	}

	if st := f.state(); st != nil {
		next.State = bytes.Clone(st)
	}

	return next
}

// Fold applies fragments in order to an empty Message.
func Fold(fragments ...Fragment) Message {
	var acc Message
	for _, f := range fragments {
		acc = Apply(acc, f)
	}
	return acc
}

func (r References) with(add References) References {
	out := References{
		Docs:  r.Docs,
		Nodes: r.Nodes,
	}
	if len(add.Docs) > 0 {
		out.Docs = appendRaw(r.Docs, add.Docs)
	}
	if len(add.Nodes) > 0 {
		out.Nodes = appendRaw(r.Nodes, add.Nodes)
	}
	if out.Docs == nil {
		out.Docs = []json.RawMessage{}
	}
	if out.Nodes == nil {
		out.Nodes = []json.RawMessage{}
	}
	return out
}

func appendRaw(dst, src []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(dst)+len(src))
	out = append(out, dst...)
	for _, raw := range src {
		out = append(out, bytes.Clone(raw))
	}
	return out
}

// parseReferences decodes the JSON embedded in a references attachment.
// Malformed payloads are skipped; the attachment itself is still kept.
func parseReferences(data string) (References, bool) {
	if data == "" {
		return References{}, false
	}
	var refs References
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return References{}, false
	}
	return refs, true
}

func stringPtr(s string) *string {
	return &s
}
