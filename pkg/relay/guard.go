package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/papercomputeco/streamrelay/pkg/metrics"
	"github.com/papercomputeco/streamrelay/pkg/sse"
	"github.com/papercomputeco/streamrelay/pkg/utils"
)

const (
	// maxErrorBody caps how much of a rejected upstream response is kept.
	maxErrorBody = 1 << 20

	maxLoggedBody = 512
)

// Guard opens upstream streams so that failures which happen before any byte
// is committed downstream can still be answered with an ordinary HTTP error.
type Guard struct {
	Client *http.Client
	Logger *slog.Logger

	// StreamTimeout bounds the whole upstream exchange. Zero means no limit.
	StreamTimeout time.Duration
}

// Connect sends req upstream and returns a session for its body once the
// upstream has answered with a 2xx status. The request runs on a context
// owned by the session, not the caller's, because the body is read after the
// handler that issued it has returned.
func (g *Guard) Connect(route string, req *http.Request, framing sse.Framing) (*Session, *Error) {
	ctx, cancel := g.upstreamContext()
	req = req.WithContext(ctx)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		g.logger().Error("upstream request failed", "route", route, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return nil, g.reject(route, UpstreamFailure(status, "upstream request failed", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()

		g.logger().Error("upstream returned error",
			"route", route,
			"status", resp.StatusCode,
			"body", utils.Truncate(string(body), maxLoggedBody),
		)

		message := http.StatusText(resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			message = "unauthorized"
		}
		rejected := UpstreamFailure(resp.StatusCode, message, nil)
		rejected.Body = body
		rejected.ContentType = resp.Header.Get("Content-Type")
		return nil, g.reject(route, rejected)
	}

	s := NewSession(route, framing, Upstream{
		Body:   resp.Body,
		Cancel: cancel,
		Ctx:    ctx,
		Status: resp.StatusCode,
		Header: resp.Header,
	}, g.logger())
	s.Bind(ctx)
	return s, nil
}

// Open connects like Connect and then reads until the first non-empty chunk
// arrives. A failure during that read, including an upstream that ends
// without sending anything, is still reported as an error result. On success
// the chunk is seeded into the session ahead of the pump.
func (g *Guard) Open(route string, req *http.Request, framing sse.Framing) (*Session, *Error) {
	start := time.Now()

	s, rerr := g.Connect(route, req, framing)
	if rerr != nil {
		return nil, rerr
	}

	buf := make([]byte, defaultBufferSize)
	for {
		n, err := s.read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.Seed(chunk)
			metrics.FirstChunkLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return s, nil
		}
		if err == nil {
			continue
		}

		first := firstReadError(s, err)
		s.Logger().Error("reading first upstream chunk", "error", err, "status", first.HTTPStatus())
		s.Close(first)
		return nil, g.reject(route, first)
	}
}

// firstReadError classifies a failure of the first read. Errors that carry a
// status keep it; timeouts become 504; everything else is a 500.
func firstReadError(s *Session, err error) *Error {
	if re := AsError(err); re != nil {
		return re
	}
	if status := statusOf(err); status > 0 {
		message := http.StatusText(status)
		if status == http.StatusUnauthorized {
			message = "unauthorized"
		}
		return UpstreamFailure(status, message, err)
	}
	if errors.Is(err, io.EOF) {
		return UpstreamFailure(http.StatusInternalServerError, "upstream stream ended before any data", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || (s.up.Ctx != nil && errors.Is(s.up.Ctx.Err(), context.DeadlineExceeded)) {
		return UpstreamFailure(http.StatusGatewayTimeout, "upstream timed out", err)
	}
	return UpstreamFailure(http.StatusInternalServerError, "upstream stream failed", err)
}

func (g *Guard) upstreamContext() (context.Context, context.CancelFunc) {
	if g.StreamTimeout > 0 {
		return context.WithTimeout(context.Background(), g.StreamTimeout)
	}
	return context.WithCancel(context.Background())
}

func (g *Guard) reject(route string, e *Error) *Error {
	metrics.GuardRejections.WithLabelValues(route, strconv.Itoa(e.HTTPStatus())).Inc()
	return e
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.Logger
}
