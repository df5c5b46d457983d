package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
	"github.com/papercomputeco/streamrelay/pkg/logger"
	"github.com/papercomputeco/streamrelay/pkg/merge"
)

// recordingPublisher keeps every event it is asked to publish.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MessageAssembledEvent
	err    error
	block  chan struct{}
}

func (r *recordingPublisher) PublishMessage(_ context.Context, event *eventstream.MessageAssembledEvent) error {
	if r.block != nil {
		<-r.block
	}
	if event == nil {
		return eventstream.ErrNilMessageEvent
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.MessageAssembledEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.MessageAssembledEvent(nil), r.events...)
}

func newEvent(session, content string) *eventstream.MessageAssembledEvent {
	return eventstream.NewMessageAssembledEvent(
		eventstream.EventSource{Route: "chat", SessionID: session},
		eventstream.StreamMeta{Outcome: "complete"},
		merge.Message{Content: &content},
	)
}

var _ = Describe("Worker Pool", func() {
	var pub *recordingPublisher

	BeforeEach(func() {
		pub = &recordingPublisher{}
	})

	It("requires a publisher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(MatchError(ContainSubstring("publisher is required")))
	})

	It("applies defaults", func() {
		wp, err := NewPool(&Config{Publisher: pub, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(wp.config.QueueSize).To(Equal(defaultJobQueueSize))
		Expect(wp.config.PublishTimeout).To(Equal(defaultPublishTimeout))
	})

	It("publishes every enqueued event before Close returns", func() {
		wp, err := NewPool(&Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		for i := range 10 {
			Expect(wp.Enqueue(Job{Event: newEvent("s", string(rune('a'+i)))})).To(BeTrue())
		}
		wp.Close()

		Expect(pub.Events()).To(HaveLen(10))
	})

	It("drops jobs when the queue is full", func() {
		pub.block = make(chan struct{})
		wp, err := NewPool(&Config{Publisher: pub, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// One job is held by the blocked worker, one fills the queue.
		Expect(wp.Enqueue(Job{Event: newEvent("s1", "a")})).To(BeTrue())
		Eventually(func() int { return len(wp.queue) }).Should(BeZero())
		Expect(wp.Enqueue(Job{Event: newEvent("s2", "b")})).To(BeTrue())
		Expect(wp.Enqueue(Job{Event: newEvent("s3", "c")})).To(BeFalse())

		close(pub.block)
		wp.Close()
		Expect(pub.Events()).To(HaveLen(2))
	})

	It("keeps going after a publish failure", func() {
		pub.err = errors.New("broker down")
		wp, err := NewPool(&Config{Publisher: pub, NumWorkers: 1})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(Job{Event: newEvent("s", "x")})).To(BeTrue())
		Expect(wp.Enqueue(Job{Event: newEvent("s", "y")})).To(BeTrue())
		wp.Close()

		Expect(pub.Events()).To(BeEmpty())
	})

	It("rejects jobs after Close and tolerates repeated Close", func() {
		wp, err := NewPool(&Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())
		wp.Close()
		wp.Close()

		Expect(wp.Enqueue(Job{Event: newEvent("s", "late")})).To(BeFalse())
	})
})
