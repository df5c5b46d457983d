package relay_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/relay"
	"github.com/papercomputeco/streamrelay/pkg/sse"
)

var _ = Describe("Session", func() {
	var (
		body      *countingBody
		down      *recorder
		cancelled int
		s         *relay.Session
	)

	BeforeEach(func() {
		cancelled = 0
		body = &countingBody{r: strings.NewReader("data: {}\n\n")}
		down = &recorder{}
		s = relay.NewSession("events", sse.EventFraming, relay.Upstream{
			Body:   body,
			Cancel: func() { cancelled++ },
		}, nil)
		s.Attach(down)
	})

	It("assigns a unique ID", func() {
		other := relay.NewSession("events", sse.EventFraming, relay.Upstream{}, nil)
		Expect(s.ID).NotTo(BeEmpty())
		Expect(other.ID).NotTo(Equal(s.ID))
	})

	Describe("Close", func() {
		It("runs its effects exactly once under concurrent calls", func() {
			var hooks int
			var hooksMu sync.Mutex
			s.OnClose(func(*relay.Error) {
				hooksMu.Lock()
				hooks++
				hooksMu.Unlock()
			})

			var wg sync.WaitGroup
			results := make(chan bool, 16)
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- s.Close(nil)
				}()
			}
			wg.Wait()
			close(results)

			wins := 0
			for won := range results {
				if won {
					wins++
				}
			}
			Expect(wins).To(Equal(1))
			Expect(hooks).To(Equal(1))
			Expect(body.Closes()).To(Equal(1))
			Expect(down.Closes()).To(Equal(1))
			Expect(cancelled).To(Equal(1))
			Expect(s.Done()).To(BeClosed())
		})

		It("records the cause", func() {
			cause := relay.UpstreamFailure(502, "bad gateway", nil)
			s.Close(cause)
			Expect(s.Cause()).To(BeIdenticalTo(cause))
			Expect(s.Closed()).To(BeTrue())
		})

		It("does not log cancellation errors from the upstream close as failures", func() {
			body.closer = func() error { return context.Canceled }
			Expect(s.Close(nil)).To(BeTrue())
		})
	})

	Describe("Attach", func() {
		It("closes a writer attached after the session closed", func() {
			closed := relay.NewSession("events", sse.EventFraming, relay.Upstream{Body: body}, nil)
			closed.Abort(context.DeadlineExceeded)

			late := &recorder{}
			closed.Attach(late)
			Expect(late.Closes()).To(Equal(1))

			closed.Close(nil)
			Expect(late.Closes()).To(Equal(1))
		})
	})

	Describe("Abort", func() {
		It("closes the session with a cancellation", func() {
			reason := errors.New("client went away")
			Expect(s.Abort(reason)).To(BeTrue())

			Expect(s.Aborted()).To(BeTrue())
			Expect(s.Done()).To(BeClosed())
			Expect(s.Cause().Kind).To(Equal(relay.KindCancelled))
			Expect(errors.Is(s.Cause(), reason)).To(BeTrue())
			Expect(body.Closes()).To(Equal(1))
		})

		It("is a no-op the second time", func() {
			Expect(s.Abort(nil)).To(BeTrue())
			Expect(s.Abort(nil)).To(BeFalse())
			Expect(down.Closes()).To(Equal(1))
		})

		It("is a no-op after close", func() {
			s.Close(nil)
			Expect(s.Abort(nil)).To(BeFalse())
			Expect(s.Aborted()).To(BeFalse())
		})
	})

	Describe("Bind", func() {
		It("aborts the session when the bound context is cancelled", func() {
			ctx, cancel := context.WithCancelCause(context.Background())
			s.Bind(ctx)

			reason := errors.New("request finished")
			cancel(reason)

			Eventually(s.Done()).Should(BeClosed())
			Expect(s.Aborted()).To(BeTrue())
			Expect(errors.Is(s.Cause(), reason)).To(BeTrue())
		})

		It("releases the binding when the session closes", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s.Bind(ctx)
			s.Close(nil)

			cancel()
			Consistently(s.Aborted).Should(BeFalse())
		})

		It("ignores binds after close", func() {
			s.Close(nil)
			ctx, cancel := context.WithCancel(context.Background())
			s.Bind(ctx)
			cancel()
			Consistently(s.Aborted).Should(BeFalse())
		})
	})

	Describe("Error", func() {
		It("reports the HTTP status for synchronous responses", func() {
			Expect(relay.UpstreamFailure(401, "unauthorized", nil).Unauthorized()).To(BeTrue())
			Expect(relay.UpstreamFailure(0, "boom", nil).HTTPStatus()).To(Equal(500))
			Expect(relay.Internal(io.ErrUnexpectedEOF).HTTPStatus()).To(Equal(500))
		})

		It("unwraps to its cause", func() {
			err := relay.Decode(io.ErrUnexpectedEOF)
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
			Expect(relay.AsError(err)).To(BeIdenticalTo(err))
			Expect(err.Error()).To(ContainSubstring("decode"))
		})
	})
})
