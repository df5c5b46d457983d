package sse

import (
	"errors"
	"io"
)

const readBufferSize = 32 * 1024

// Reader pulls frames lazily from a source io.Reader.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │ chunks
// ▼
// ┌──────────────────┐
// │   Reassembler    │
// └──────────────────┘
// │ frames
// ▼
// ┌──────────────────┐
// │  Reader.Next()   │
// └──────────────────┘
type Reader struct {
	src    io.Reader
	ra     *Reassembler
	buf    []byte
	queue  []Frame
	done   bool
	err    error
	onRead func(chunk []byte)
}

// NewReader returns a Reader that splits src according to f.
func NewReader(src io.Reader, f Framing) *Reader {
	return &Reader{
		src: src,
		ra:  NewReassembler(f),
		buf: make([]byte, readBufferSize),
	}
}

// OnChunk registers a callback invoked with every raw chunk read from the
// source, before it is split. The slice is only valid during the call.
func (r *Reader) OnChunk(fn func(chunk []byte)) {
	r.onRead = fn
}

// Next returns the next complete frame. It blocks until one is available.
// When the source is exhausted any unterminated residual is returned as a
// final frame, then Next returns nil, nil.
func (r *Reader) Next() (*Frame, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		if r.done {
			return nil, nil
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			if r.onRead != nil {
				r.onRead(r.buf[:n])
			}
			r.queue = append(r.queue, r.ra.Feed(r.buf[:n])...)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Frames completed by this read are still delivered first.
				r.err = err
				continue
			}
			r.done = true
			if fr, ok := r.ra.Flush(); ok {
				r.queue = append(r.queue, fr)
			}
		}
	}

	fr := r.queue[0]
	r.queue = r.queue[1:]
	return &fr, nil
}
