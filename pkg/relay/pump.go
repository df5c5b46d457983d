package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/papercomputeco/streamrelay/pkg/metrics"
	"github.com/papercomputeco/streamrelay/pkg/sse"
)

const defaultBufferSize = 32 * 1024

// Pump copies frames from a session's upstream to its downstream writer.
//
// Each chunk is reassembled into frames, every frame is observed, transformed
// and written before the next read, so a slow client slows the upstream read.
// On a clean end of stream any residual bytes are forwarded as is. On an
// upstream or internal failure exactly one error frame is written. On
// cancellation nothing more is written.
type Pump struct {
	// Transform rewrites a frame before it is forwarded. Nil forwards as is.
	Transform func(sse.Frame) sse.Frame

	// Observe sees every frame, including the residual, before it is
	// transformed.
	Observe func(sse.Frame)

	// BufferSize is the upstream read size. Zero means 32KiB.
	BufferSize int
}

// Run pumps s until the stream ends, fails or is cancelled, then closes s.
// It never panics: a panic inside a transform or observer is recovered and
// reported as an internal error.
func (p *Pump) Run(s *Session) {
	metrics.SessionsActive.WithLabelValues(s.Route).Inc()
	defer metrics.SessionsActive.WithLabelValues(s.Route).Dec()

	var cause *Error
	defer func() {
		if r := recover(); r != nil {
			cause = Internal(fmt.Errorf("pump panic: %v", r))
		}
		p.finish(s, cause)
	}()

	cause = p.pump(s)
}

func (p *Pump) pump(s *Session) *Error {
	if s.Aborted() || s.Closed() {
		return Cancelled(s.abortCause())
	}
	if s.downstream == nil {
		return Internal(errors.New("session has no downstream writer"))
	}

	for _, chunk := range s.takeSeed() {
		if err := p.forward(s, chunk); err != nil {
			return err
		}
	}

	size := p.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	buf := make([]byte, size)

	for {
		if s.Aborted() || s.Closed() {
			return Cancelled(s.abortCause())
		}

		n, err := s.read(buf)
		if n > 0 {
			if ferr := p.forward(s, buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return p.residual(s)
		}
		return s.classifyRead(err)
	}
}

func (p *Pump) forward(s *Session, chunk []byte) *Error {
	framing := s.Framing()
	for _, frame := range s.feed(chunk) {
		out := p.apply(frame)
		if err := s.write(framing.Encode(out.Raw)); err != nil {
			return err
		}
		metrics.FramesForwarded.WithLabelValues(s.Route).Inc()
	}
	return nil
}

// residual forwards bytes left after the last delimiter without adding one.
func (p *Pump) residual(s *Session) *Error {
	frame, ok := s.flush()
	if !ok {
		return nil
	}
	out := p.apply(frame)
	if err := s.write([]byte(out.Raw)); err != nil {
		return err
	}
	metrics.FramesForwarded.WithLabelValues(s.Route).Inc()
	return nil
}

func (p *Pump) apply(frame sse.Frame) sse.Frame {
	if p.Observe != nil {
		p.Observe(frame)
	}
	if p.Transform != nil {
		return p.Transform(frame)
	}
	return frame
}

// finish handles the outcome of a pump and performs the single close.
func (p *Pump) finish(s *Session, cause *Error) {
	log := s.Logger()

	if cause == nil {
		log.Debug("stream complete")
		metrics.SessionsClosed.WithLabelValues(s.Route, "complete").Inc()
		s.Close(nil)
		return
	}

	switch cause.Kind {
	case KindCancelled:
		log.Info("stream cancelled", "reason", cause.Err)
		metrics.SessionsClosed.WithLabelValues(s.Route, cause.Kind.String()).Inc()
		s.Close(cause)
		return
	case KindUpstream, KindDecode:
		log.Error("upstream stream failed", "error", cause.Err, "kind", cause.Kind.String())
	case KindInternal:
		log.Error("relay internal error", "error", cause.Err)
	}

	p.writeErrorFrame(s, cause, log)
	metrics.SessionsClosed.WithLabelValues(s.Route, cause.Kind.String()).Inc()
	s.Close(cause)
}

func (p *Pump) writeErrorFrame(s *Session, cause *Error, log *slog.Logger) {
	if s.downstream == nil {
		return
	}
	frame := s.Framing().ErrorFrame(cause.Message)
	if err := s.write(frame); err != nil {
		log.Debug("could not deliver error frame", "error", err.Err)
		return
	}
	metrics.ErrorFrames.WithLabelValues(s.Route).Inc()
}
