package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
	"github.com/papercomputeco/streamrelay/pkg/merge"
)

var chatFragments = []string{
	`{"content":"Hel"}`,
	`{"content":"lo"}`,
	`{"role":"assistant","responseId":"r1"}`,
	`{"content":"!","custom_content":{"attachments":[{"type":"references","data":"{\"docs\":[{\"doc_id\":\"d1\"}],\"nodes\":[]}"}]}}`,
}

// chatUpstream serves NUL-terminated fragments, flushing after each one, and
// records the request body it received.
func chatUpstream(gotBody *captured, fragments ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotBody != nil {
			gotBody.set(r)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Request-Id", "req-7")
		flusher := w.(http.Flusher)
		for _, f := range fragments {
			fmt.Fprint(w, f+"\x00")
			flusher.Flush()
		}
	}))
}

var _ = Describe("Chat relay", func() {
	var (
		p         *Proxy
		upstream  *httptest.Server
		publisher *recordingPublisher
	)

	BeforeEach(func() {
		publisher = &recordingPublisher{}
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		if upstream != nil {
			upstream.Close()
		}
	})

	newChatRequest := func(target, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	Context("when upstream streams fragments", func() {
		var seen *captured

		BeforeEach(func() {
			seen = &captured{}
			upstream = chatUpstream(seen, chatFragments...)
			p = newTestProxy(Config{UpstreamURL: upstream.URL, Publisher: publisher})
		})

		It("streams the upstream bytes verbatim", func() {
			resp, body := doRequest(p, newChatRequest("/api/chat", `{"prompt":"hi"}`))

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(strings.Join(chatFragments, "\x00") + "\x00"))
			Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-7"))
		})

		It("posts to the configured chat path", func() {
			doRequest(p, newChatRequest("/api/chat", `{"prompt":"hi"}`))
			Expect(seen.get().URL.Path).To(Equal(DefaultChatPath))
			Expect(seen.get().Method).To(Equal(http.MethodPost))
		})

		It("publishes the assembled message", func() {
			doRequest(p, newChatRequest("/api/chat", `{"prompt":"hi"}`))

			// Drain the worker pool so publishing completes.
			p.Close()
			p = nil

			events := publisher.Events()
			Expect(events).To(HaveLen(1))

			event := events[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeMessageAssembled))
			Expect(event.Source.Route).To(Equal("chat"))
			Expect(event.Stream.Fragments).To(Equal(4))
			Expect(event.Stream.Outcome).To(Equal("complete"))
			Expect(event.Message.Text()).To(Equal("Hello!"))
			Expect(event.Message.RoleName()).To(Equal("assistant"))
			Expect(event.Message.References.Docs).To(HaveLen(1))
		})

		It("returns the merged message in assemble mode", func() {
			resp, body := doRequest(p, newChatRequest("/api/chat?assemble=true", `{"prompt":"hi"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var msg merge.Message
			Expect(json.Unmarshal([]byte(body), &msg)).To(Succeed())
			Expect(msg.Text()).To(Equal("Hello!"))
			Expect(*msg.ResponseID).To(Equal("r1"))
			Expect(msg.Attachments).To(HaveLen(1))
			Expect(string(msg.References.Docs[0])).To(MatchJSON(`{"doc_id":"d1"}`))
			Expect(msg.ErrorMessage).To(BeNil())
		})
	})

	It("forwards the request body upstream", func() {
		bodies := make(chan string, 1)
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies <- string(b)
			fmt.Fprint(w, "{}\x00")
		}))
		p = newTestProxy(Config{UpstreamURL: upstream.URL})

		doRequest(p, newChatRequest("/api/chat", `{"prompt":"tell me"}`))
		Eventually(bodies).Should(Receive(Equal(`{"prompt":"tell me"}`)))
	})

	It("answers 401 synchronously when upstream refuses credentials", func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		p = newTestProxy(Config{UpstreamURL: upstream.URL, Publisher: publisher})

		resp, body := doRequest(p, newChatRequest("/api/chat", `{}`))
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body).To(MatchJSON(`{"error":"unauthorized"}`))

		p.Close()
		p = nil
		Expect(publisher.Events()).To(BeEmpty())
	})

	It("answers 500 when the first read fails", func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Length", "64")
			w.WriteHeader(http.StatusOK)
		}))
		p = newTestProxy(Config{UpstreamURL: upstream.URL})

		resp, body := doRequest(p, newChatRequest("/api/chat", `{}`))
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"error":"upstream stream failed"}`))
	})

	It("answers 500 when upstream ends before sending anything", func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		p = newTestProxy(Config{UpstreamURL: upstream.URL})

		resp, body := doRequest(p, newChatRequest("/api/chat", `{}`))
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"error":"upstream stream ended before any data"}`))
	})

	Context("when upstream fails after the first fragment", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "{\"content\":\"partial\"}\x00")
				w.(http.Flusher).Flush()

				conn, _, err := w.(http.Hijacker).Hijack()
				if err == nil {
					conn.Close()
				}
			}))
			p = newTestProxy(Config{UpstreamURL: upstream.URL, Publisher: publisher})
		})

		It("appends one chat error frame", func() {
			resp, body := doRequest(p, newChatRequest("/api/chat", `{}`))

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal("{\"content\":\"partial\"}\x00{\"errorMessage\":\"upstream stream failed\"}\x00"))
		})

		It("records the failure on the published message", func() {
			doRequest(p, newChatRequest("/api/chat", `{}`))
			p.Close()
			p = nil

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Stream.Outcome).To(Equal("upstream"))
			Expect(events[0].Message.Text()).To(Equal("partial"))
			Expect(*events[0].Message.ErrorMessage).To(Equal("upstream stream failed"))
		})

		It("folds the failure into the assembled message", func() {
			resp, body := doRequest(p, newChatRequest("/api/chat?assemble=true", `{}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var msg merge.Message
			Expect(json.Unmarshal([]byte(body), &msg)).To(Succeed())
			Expect(msg.Text()).To(Equal("partial"))
			Expect(msg.ErrorMessage).NotTo(BeNil())
		})
	})
})
