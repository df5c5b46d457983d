package sse

import (
	"bytes"
)

// Reassembler turns an arbitrarily chunked byte stream into complete frames.
// Partial input is buffered across calls to Feed. After every Feed the
// pending buffer holds no complete delimiter.
//
// Splitting works on raw bytes. Both delimiters are ASCII, which never occurs
// inside a multi-byte UTF-8 sequence, so a character cut across chunks is
// rejoined before its frame is emitted and frame bodies are forwarded byte
// for byte, invalid UTF-8 included.
//
// A Reassembler is not safe for concurrent use; a session owns exactly one.
type Reassembler struct {
	framing Framing

	// pending holds bytes not yet terminated by a delimiter.
	pending []byte
}

// NewReassembler creates a Reassembler for the given framing.
func NewReassembler(f Framing) *Reassembler {
	return &Reassembler{framing: f}
}

// Framing returns the framing this reassembler splits on.
func (r *Reassembler) Framing() Framing {
	return r.framing
}

// Feed buffers chunk and returns every frame completed by it, in order.
// Empty chunks are valid and return no frames.
func (r *Reassembler) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}

	// Only the tail of the old buffer can complete a delimiter that spans
	// the chunk boundary.
	from := max(len(r.pending)-len(r.framing.delimiter)+1, 0)
	r.pending = append(r.pending, chunk...)
	return r.extract(from)
}

// Flush ends the input. The unterminated residual, if any, is returned as a
// final frame with its bytes untouched. The reassembler is empty afterwards
// and may be reused.
func (r *Reassembler) Flush() (Frame, bool) {
	if len(r.pending) == 0 {
		return Frame{}, false
	}

	fr := r.framing.Frame(string(r.pending))
	r.pending = nil
	return fr, true
}

// Pending returns the unterminated residual.
func (r *Reassembler) Pending() string {
	return string(r.pending)
}

func (r *Reassembler) extract(from int) []Frame {
	var frames []Frame
	delim := r.framing.delimiter

	start := 0
	for {
		i := bytes.Index(r.pending[from:], delim)
		if i < 0 {
			break
		}
		end := from + i
		frames = append(frames, r.framing.Frame(string(r.pending[start:end])))
		start = end + len(delim)
		from = start
	}

	if start > 0 {
		r.pending = append(r.pending[:0:0], r.pending[start:]...)
	}
	return frames
}
