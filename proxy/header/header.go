// Package header provides header filtering for the streamrelay proxy.
//
// The relay sits between a browser client and the internal generation
// backend like so:
//
//	Client <--> Relay <--> Upstream backend
//
// and each leg negotiates hops, encoding and credentials independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionHeader carries the relay session ID back to the client.
const SessionHeader = "X-Streamrelay-Session"

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> relay --> upstream)
// that are not forwarded to the upstream backend.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},
	"Keep-Alive": {},

	// Rewritten by Go's http.Transport to match the upstream URL.
	"Host": {},

	// Stripped so that http.Transport negotiates gzip itself and hands us a
	// decoded body to split into frames.
	"Accept-Encoding": {},

	// Recomputed for the outgoing body.
	"Content-Length": {},

	// Browser session state belongs to the auth layer. Upstream credentials
	// are injected explicitly instead.
	"Cookie":        {},
	"Authorization": {},
}

// skipResponse is the set of upstream response headers (client <-- relay <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The relay always reads a decompressed body.
	"Content-Encoding": {},

	// Streamed responses have no known length.
	"Content-Length": {},

	// Upstream cookies are never exposed to the browser.
	"Set-Cookie": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that the relay should not
// forward to the upstream backend.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetUpstreamCredentials sets the bearer token for the upstream request. An
// empty token leaves the request unauthenticated.
func (h *Handler) SetUpstreamCredentials(req *http.Request, token string) {
	if token == "" {
		return
	}
	if !strings.Contains(token, " ") {
		token = "Bearer " + token
	}
	req.Header.Set("Authorization", token)
}

// SetClientResponseHeaders copies upstream response headers to the Fiber
// context, filtering headers that the relay should not forward back down to
// the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, header http.Header) {
	for k, v := range header {
		if _, skip := skipResponse[http.CanonicalHeaderKey(k)]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

// SetEventStreamHeaders marks the response as an unbuffered event stream.
func (h *Handler) SetEventStreamHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// SetSessionHeader exposes the relay session ID to the client.
func (h *Handler) SetSessionHeader(c *fiber.Ctx, sessionID string) {
	c.Set(SessionHeader, sessionID)
}
