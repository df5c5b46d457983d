package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetUpstreamRequestHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
		got http.Header
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
		got = nil

		app.Post("/test", func(c *fiber.Ctx) error {
			req, _ := http.NewRequest(http.MethodPost, "http://upstream/test", nil)
			hh.SetUpstreamRequestHeaders(c, req)
			got = req.Header
			return c.SendStatus(fiber.StatusOK)
		})
	})

	AfterEach(func() {
		app.Shutdown()
	})

	send := func(headers map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
	}

	It("forwards standard headers to the upstream request", func() {
		send(map[string]string{
			"Content-Type":    "application/json",
			"Accept-Language": "en",
			"X-Request-Id":    "abc-123",
		})

		Expect(got.Get("Content-Type")).To(Equal("application/json"))
		Expect(got.Get("Accept-Language")).To(Equal("en"))
		Expect(got.Get("X-Request-Id")).To(Equal("abc-123"))
	})

	It("strips hop-by-hop headers", func() {
		send(map[string]string{"Connection": "keep-alive", "Host": "client.example.com"})

		Expect(got.Get("Connection")).To(BeEmpty())
		Expect(got.Get("Host")).To(BeEmpty())
	})

	It("strips Accept-Encoding so Go's http.Transport negotiates its own", func() {
		send(map[string]string{"Accept-Encoding": "gzip, deflate, br", "X-Request-Id": "abc"})

		Expect(got.Get("Accept-Encoding")).To(BeEmpty())
		Expect(got.Get("X-Request-Id")).To(Equal("abc"))
	})

	It("does not leak browser credentials upstream", func() {
		send(map[string]string{"Cookie": "session=abc", "Authorization": "Bearer browser"})

		Expect(got.Get("Cookie")).To(BeEmpty())
		Expect(got.Get("Authorization")).To(BeEmpty())
	})
})

var _ = Describe("SetUpstreamCredentials", func() {
	It("sets a bearer token", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream", nil)
		NewHandler().SetUpstreamCredentials(req, "token123")
		Expect(req.Header.Get("Authorization")).To(Equal("Bearer token123"))
	})

	It("keeps an explicit scheme", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream", nil)
		NewHandler().SetUpstreamCredentials(req, "Basic dXNlcg==")
		Expect(req.Header.Get("Authorization")).To(Equal("Basic dXNlcg=="))
	})

	It("leaves the request alone without a token", func() {
		req, _ := http.NewRequest(http.MethodGet, "http://upstream", nil)
		NewHandler().SetUpstreamCredentials(req, "")
		Expect(req.Header.Get("Authorization")).To(BeEmpty())
	})
})

var _ = Describe("SetClientResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	respond := func(upstream http.Header) *http.Response {
		app.Get("/test", func(c *fiber.Ctx) error {
			hh.SetClientResponseHeaders(c, upstream)
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return resp
	}

	It("forwards standard upstream response headers to the client", func() {
		resp := respond(http.Header{
			"Content-Type":   {"application/json"},
			"X-Request-Id":   {"abc-123"},
			"X-Custom-Value": {"hello"},
		})

		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
		Expect(resp.Header.Get("X-Custom-Value")).To(Equal("hello"))
	})

	It("strips transport and encoding headers", func() {
		resp := respond(http.Header{
			"Transfer-Encoding": {"chunked"},
			"Content-Encoding":  {"gzip"},
			"Content-Length":    {"1234"},
			"X-Request-Id":      {"abc-123"},
		})

		Expect(resp.Header.Get("Transfer-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("Content-Length")).NotTo(Equal("1234"))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
	})

	It("never exposes upstream cookies", func() {
		resp := respond(http.Header{"Set-Cookie": {"internal=1"}})
		Expect(resp.Header.Get("Set-Cookie")).To(BeEmpty())
	})

	It("joins multi-value response headers with commas", func() {
		resp := respond(http.Header{"X-Multi": {"value1", "value2"}})
		Expect(resp.Header.Get("X-Multi")).To(Equal("value1, value2"))
	})
})

var _ = Describe("SetEventStreamHeaders", func() {
	It("marks the response as an unbuffered event stream", func() {
		app := fiber.New()
		defer app.Shutdown()

		app.Get("/test", func(c *fiber.Ctx) error {
			h := NewHandler()
			h.SetEventStreamHeaders(c)
			h.SetSessionHeader(c, "sess-1")
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
		Expect(resp.Header.Get(SessionHeader)).To(Equal("sess-1"))
	})
})
