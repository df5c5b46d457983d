package relay_test

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/relay"
	"github.com/papercomputeco/streamrelay/pkg/sse"
)

var _ = Describe("Tracker", func() {
	It("tracks detached pumps until they finish", func() {
		t := relay.NewTracker()
		s, upstream, _ := newPipeSession(sse.EventFraming)

		Expect(t.Go(s, func() { (&relay.Pump{}).Run(s) })).To(Succeed())
		Eventually(t.Active).Should(Equal(1))

		found, ok := t.Lookup(s.ID)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(s))

		Expect(upstream.Close()).To(Succeed())
		Eventually(t.Active).Should(BeZero())
	})

	It("aborts running sessions on shutdown and waits for them", func() {
		t := relay.NewTracker()
		s, _, down := newPipeSession(sse.EventFraming)
		Expect(t.Go(s, func() { (&relay.Pump{}).Run(s) })).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(t.Shutdown(ctx)).To(Succeed())

		Expect(s.Aborted()).To(BeTrue())
		Expect(errors.Is(s.Cause(), relay.ErrServerShutdown)).To(BeTrue())
		Expect(down.String()).To(BeEmpty())
		Expect(t.Active()).To(BeZero())
	})

	It("refuses new sessions after shutdown", func() {
		t := relay.NewTracker()
		Expect(t.Shutdown(context.Background())).To(Succeed())

		s := relay.NewSession("test", sse.EventFraming, relay.Upstream{Body: io.NopCloser(nil)}, nil)
		Expect(t.Go(s, func() {})).To(MatchError(relay.ErrShuttingDown))
	})

	It("gives up waiting when the context ends", func() {
		t := relay.NewTracker()
		s := relay.NewSession("test", sse.EventFraming, relay.Upstream{}, nil)
		release := make(chan struct{})
		defer close(release)
		Expect(t.Go(s, func() { <-release })).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		Expect(t.Shutdown(ctx)).To(MatchError(context.DeadlineExceeded))
	})
})
