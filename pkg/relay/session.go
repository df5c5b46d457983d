// Package relay moves framed byte streams from an upstream HTTP response to a
// downstream client with backpressure, cancellation in both directions and a
// single close path.
package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/papercomputeco/streamrelay/pkg/sse"
)

// Upstream is an open upstream response body together with the means to
// cancel the request that produced it.
type Upstream struct {
	Body   io.ReadCloser
	Cancel context.CancelFunc

	// Ctx is the upstream request context. It may be nil.
	Ctx context.Context

	Status int
	Header http.Header
}

// Session is one relayed stream. It owns the upstream reader, the downstream
// writer, an abort flag and the reassembly buffer. All close paths converge on
// Close, which runs its effects at most once.
type Session struct {
	ID    string
	Route string

	up         Upstream
	downstream io.WriteCloser
	ra         *sse.Reassembler
	logger     *slog.Logger

	// seed holds bytes already read from upstream before the pump started.
	seed [][]byte

	mu          sync.Mutex
	aborted     bool
	abortReason error
	unbind      []func() bool
	onClose     []func(*Error)

	closed atomic.Bool
	cause  *Error
	done   chan struct{}
}

// NewSession creates a session reading from up with the given framing.
func NewSession(route string, framing sse.Framing, up Upstream, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if up.Cancel == nil {
		up.Cancel = func() {}
	}
	id := uuid.NewString()
	return &Session{
		ID:     id,
		Route:  route,
		up:     up,
		ra:     sse.NewReassembler(framing),
		logger: logger.With("session", id, "route", route),
		done:   make(chan struct{}),
	}
}

// Framing returns the session's frame boundary rules.
func (s *Session) Framing() sse.Framing {
	return s.ra.Framing()
}

// Header returns the upstream response headers.
func (s *Session) Header() http.Header {
	if s.up.Header == nil {
		return http.Header{}
	}
	return s.up.Header
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Attach sets the downstream writer. It must be called before the pump runs.
// When the session has already closed, w is closed immediately.
func (s *Session) Attach(w io.WriteCloser) {
	s.mu.Lock()
	if !s.closed.Load() {
		s.downstream = w
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := w.Close(); err != nil && !isCancellation(err) {
		s.logger.Warn("closing downstream", "error", err)
	}
}

// Seed queues bytes that were read from upstream ahead of the pump, such as
// the first chunk probed by Guard.Open.
func (s *Session) Seed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.seed = append(s.seed, chunk)
}

func (s *Session) takeSeed() [][]byte {
	seed := s.seed
	s.seed = nil
	return seed
}

// Bind ties ctx to the session: when ctx is done the session is aborted with
// the context's cause. Bind must be called before the first upstream read.
// The binding is released when the session closes.
func (s *Session) Bind(ctx context.Context) {
	if ctx == nil {
		return
	}
	stop := context.AfterFunc(ctx, func() {
		s.Abort(context.Cause(ctx))
	})

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		stop()
		return
	}
	s.unbind = append(s.unbind, stop)
	s.mu.Unlock()
}

// OnClose registers fn to run once the session has closed. Hooks run in
// registration order on the goroutine that performed the close.
func (s *Session) OnClose(fn func(cause *Error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Abort requests cancellation. It marks the session aborted, cancels the
// upstream request and closes the session. It returns false when the session
// was already aborted or closed.
func (s *Session) Abort(reason error) bool {
	s.mu.Lock()
	if s.aborted || s.closed.Load() {
		s.mu.Unlock()
		return false
	}
	s.aborted = true
	s.abortReason = reason
	s.mu.Unlock()

	s.logger.Debug("session abort requested", "reason", reason)
	s.Close(Cancelled(reason))
	return true
}

// Aborted reports whether Abort was called.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Close releases the session. The first call cancels the upstream request,
// closes both ends, releases context bindings and runs OnClose hooks.
// Subsequent calls are no-ops and return false.
func (s *Session) Close(cause *Error) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	s.cause = cause
	unbind := s.unbind
	s.unbind = nil
	hooks := s.onClose
	downstream := s.downstream
	s.mu.Unlock()

	s.up.Cancel()
	if s.up.Body != nil {
		if err := s.up.Body.Close(); err != nil && !isCancellation(err) {
			s.logger.Warn("closing upstream body", "error", err)
		}
	}
	if downstream != nil {
		if err := downstream.Close(); err != nil && !isCancellation(err) {
			s.logger.Warn("closing downstream", "error", err)
		}
	}
	for _, stop := range unbind {
		stop()
	}

	close(s.done)

	for _, fn := range hooks {
		fn(cause)
	}
	return true
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Done is closed once the session has closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cause returns the error the session was closed with. It is nil while the
// session is open and after a clean end of stream.
func (s *Session) Cause() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Pending returns the bytes buffered after the last complete frame.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ra.Pending()
}

func (s *Session) feed(chunk []byte) []sse.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ra.Feed(chunk)
}

func (s *Session) flush() (sse.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ra.Flush()
}

// read pulls the next chunk from upstream.
func (s *Session) read(p []byte) (int, error) {
	return s.up.Body.Read(p)
}

// write forwards p downstream unless the session was aborted. A write error
// means the client has gone away.
func (s *Session) write(p []byte) *Error {
	if s.Aborted() || s.closed.Load() {
		return Cancelled(s.abortCause())
	}
	if _, err := s.downstream.Write(p); err != nil {
		return Cancelled(err)
	}
	return nil
}

func (s *Session) abortCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortReason != nil {
		return s.abortReason
	}
	return context.Canceled
}

// classifyRead maps an upstream read failure onto the error taxonomy. Errors
// caused by our own cancellation are not upstream failures.
func (s *Session) classifyRead(err error) *Error {
	if re := AsError(err); re != nil {
		return re
	}
	if s.Aborted() || s.closed.Load() {
		return Cancelled(s.abortCause())
	}
	if s.up.Ctx != nil && s.up.Ctx.Err() != nil {
		return Cancelled(context.Cause(s.up.Ctx))
	}
	if isCancellation(err) {
		return Cancelled(err)
	}
	return UpstreamFailure(statusOf(err), "upstream stream failed", err)
}
