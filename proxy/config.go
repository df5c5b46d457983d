package proxy

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamrelay/pkg/eventstream"
	"github.com/papercomputeco/streamrelay/pkg/theme"
)

// DefaultChatPath is the upstream chat-delta endpoint.
const DefaultChatPath = "/chat/completions"

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream backend URL (e.g., "http://localhost:9000")
	UpstreamURL string

	// ChatPath is the upstream chat-delta endpoint. Defaults to DefaultChatPath.
	ChatPath string

	// StreamTimeout bounds a whole relayed stream. Zero means no limit.
	StreamTimeout time.Duration

	// ConnectTimeout bounds the wait for upstream response headers.
	// Zero means no limit.
	ConnectTimeout time.Duration

	// Themes provides the defaults merged under theme event frames.
	// If nil, theme frames are merged over an empty object.
	Themes *theme.Cache

	// Publisher receives assembled chat messages.
	// If nil, assembled messages are not published.
	Publisher eventstream.Publisher

	// Credentials resolves the upstream token for a request.
	// Defaults to reading the Authorization header.
	Credentials CredentialsFunc
}

// CredentialsFunc returns the opaque upstream credentials for a client
// request. An error rejects the request as unauthorized.
type CredentialsFunc func(c *fiber.Ctx) (string, error)

// HeaderCredentials reads credentials from a request header.
func HeaderCredentials(name string) CredentialsFunc {
	return func(c *fiber.Ctx) (string, error) {
		return c.Get(name), nil
	}
}
