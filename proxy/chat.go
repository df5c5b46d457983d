package proxy

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
	"github.com/papercomputeco/streamrelay/pkg/merge"
	"github.com/papercomputeco/streamrelay/pkg/relay"
	"github.com/papercomputeco/streamrelay/pkg/sse"
	"github.com/papercomputeco/streamrelay/proxy/worker"
)

// handleChat relays a chat-delta stream. The first upstream chunk is read
// before anything is sent, so early failures get a proper status code. With
// ?assemble=true the fragments are folded and returned as one JSON message
// instead of being streamed.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	// fasthttp reuses the request body buffer after the handler returns.
	body := bytes.Clone(c.Body())

	req, err := p.newUpstreamRequest(c, http.MethodPost, p.config.ChatPath, bytes.NewReader(body))
	if err != nil {
		return p.sendRequestError(c, err)
	}

	s, rerr := p.guard.Open(routeChat, req, sse.ChatFraming)
	if rerr != nil {
		return p.sendRelayError(c, rerr)
	}

	asm := merge.NewAssembler()
	s.OnClose(func(cause *relay.Error) {
		msg := asm.Finalize(finalizeCause(cause))
		p.enqueueAssembledMessage(s, asm, msg, cause, startTime)
	})

	pump := &relay.Pump{
		Observe: func(frame sse.Frame) {
			if err := asm.Push(frame); err != nil && !errors.Is(err, merge.ErrFinalized) {
				s.Logger().Debug("skipping undecodable fragment", "error", err)
			}
		},
	}

	if c.QueryBool("assemble") {
		return p.assemble(c, s, pump, asm)
	}

	p.headerHandler.SetClientResponseHeaders(c, s.Header())
	return p.stream(c, s, pump)
}

// assemble pumps s to completion without a client-facing stream and answers
// with the merged message.
func (p *Proxy) assemble(c *fiber.Ctx, s *relay.Session, pump *relay.Pump, asm *merge.Assembler) error {
	s.Attach(discard{})

	finished := make(chan struct{})
	if err := p.tracker.Go(s, func() {
		defer close(finished)
		pump.Run(s)
	}); err != nil {
		s.Close(relay.Cancelled(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "server shutting down"})
	}
	watchDisconnect(c, s)
	<-finished

	if cause := s.Cause(); cause != nil && errors.Is(cause, errClientGone) {
		return nil
	}

	msg := asm.Finalize(finalizeCause(s.Cause()))
	p.headerHandler.SetSessionHeader(c, s.ID)
	return c.JSON(msg)
}

// finalizeCause turns a session close cause into the error folded into the
// assembled message. Cancellations are not message errors.
func finalizeCause(cause *relay.Error) error {
	if cause == nil || cause.Kind == relay.KindCancelled {
		return nil
	}
	return errors.New(cause.Message)
}

func (p *Proxy) enqueueAssembledMessage(s *relay.Session, asm *merge.Assembler, msg merge.Message, cause *relay.Error, startTime time.Time) {
	completedAt := time.Now()
	outcome := "complete"
	if cause != nil {
		outcome = cause.Kind.String()
	}

	event := eventstream.NewMessageAssembledEvent(
		eventstream.EventSource{
			Route:     s.Route,
			SessionID: s.ID,
			Upstream:  p.config.UpstreamURL,
		},
		eventstream.StreamMeta{
			StartedAt:   startTime.UTC(),
			CompletedAt: completedAt.UTC(),
			DurationMs:  completedAt.Sub(startTime).Milliseconds(),
			Fragments:   asm.Fragments(),
			Malformed:   asm.Malformed(),
			Outcome:     outcome,
		},
		msg,
	)
	p.workerPool.Enqueue(worker.Job{Event: event})
}

// discard is the downstream of an assembled request.
type discard struct{}

func (discard) Write(b []byte) (int, error) { return io.Discard.Write(b) }
func (discard) Close() error                { return nil }
