// Package proxy provides the streamrelay HTTP server. It relays event
// streams and chat-delta streams from an internal backend to browser
// clients, overlays theme defaults on theme events and publishes the
// assembled form of every relayed chat message.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/streamrelay/pkg/metrics"
	"github.com/papercomputeco/streamrelay/pkg/relay"
	"github.com/papercomputeco/streamrelay/proxy/header"
	"github.com/papercomputeco/streamrelay/proxy/worker"
)

const shutdownTimeout = 10 * time.Second

// ErrorResponse is the JSON body of synchronous error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Proxy is the streaming relay server.
// Streams are pumped by detached goroutines tracked per session; post-stream
// work (publishing assembled messages) is handed to the worker pool.
type Proxy struct {
	config        Config
	logger        *slog.Logger
	server        *fiber.App
	guard         *relay.Guard
	tracker       *relay.Tracker
	workerPool    *worker.Pool
	headerHandler *header.Handler
	credentials   CredentialsFunc
	upstream      string
}

// New creates a new Proxy.
// Returns an error if the upstream URL is missing or malformed.
func New(config Config, logger *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	u, err := url.Parse(config.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream URL %q must be http or https", config.UpstreamURL)
	}

	if config.ChatPath == "" {
		config.ChatPath = DefaultChatPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	credentials := config.Credentials
	if credentials == nil {
		credentials = HeaderCredentials(fiber.HeaderAuthorization)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.ConnectTimeout

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	p := &Proxy{
		config:     config,
		logger:     logger,
		server:     app,
		tracker:    relay.NewTracker(),
		workerPool: wp,
		guard: &relay.Guard{
			// Streams are long lived; only the header wait and the
			// configured stream timeout bound them.
			Client:        &http.Client{Transport: transport},
			Logger:        logger,
			StreamTimeout: config.StreamTimeout,
		},
		headerHandler: header.NewHandler(),
		credentials:   credentials,
		upstream:      strings.TrimSuffix(config.UpstreamURL, "/"),
	}

	app.Get("/healthz", p.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	api.Get("/events/*", p.handleEvents)
	api.Get("/themes/:id/events", p.handleThemeEvents)
	api.Post("/chat", p.handleChat)

	return p, nil
}

// Run starts the relay server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listener(listener)
}

// Close aborts live sessions, stops the server and drains the worker pool.
func (p *Proxy) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := p.tracker.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for relay sessions: %w", err))
	}
	if err := p.server.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down server: %w", err))
	}
	p.workerPool.Close()
	return errors.Join(errs...)
}

// ActiveSessions returns the number of streams currently being relayed.
func (p *Proxy) ActiveSessions() int {
	return p.tracker.Active()
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:         "ok",
		ActiveSessions: p.tracker.Active(),
	})
}

// errUnauthorized is returned when the credentials collaborator refuses a
// request.
var errUnauthorized = errors.New("unauthorized")

// newUpstreamRequest builds the upstream request for path, carrying the
// client's query string, filtered headers and upstream credentials.
func (p *Proxy) newUpstreamRequest(c *fiber.Ctx, method, path string, body io.Reader) (*http.Request, error) {
	target := p.upstream + path
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		target += "?" + string(q)
	}

	// The guard replaces this context with one owned by the session, since
	// fasthttp recycles the request context once the handler returns.
	req, err := http.NewRequestWithContext(context.Background(), method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, req)

	token, err := p.credentials(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	p.headerHandler.SetUpstreamCredentials(req, token)

	return req, nil
}

// stream wires s to the response body through a pipe and starts its pump on
// a tracked goroutine. The handler returns immediately; fasthttp reads the
// pipe until the pump closes it.
func (p *Proxy) stream(c *fiber.Ctx, s *relay.Session, pump *relay.Pump) error {
	// With io.Pipe, pw.Write blocks until fasthttp has consumed the data and
	// flushed it to the socket, which gives the pump per-frame backpressure.
	// When the client goes away fasthttp closes the body, which aborts the
	// session; an idle stream is aborted by the disconnect watcher.
	pr, pw := io.Pipe()
	s.Attach(pw)

	if err := p.tracker.Go(s, func() { pump.Run(s) }); err != nil {
		s.Close(relay.Cancelled(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "server shutting down"})
	}
	watchDisconnect(c, s)

	p.headerHandler.SetSessionHeader(c, s.ID)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(sessionBody{PipeReader: pr, session: s}, -1)
	return nil
}

// sendRelayError answers a request whose upstream failed before anything
// was streamed.
func (p *Proxy) sendRelayError(c *fiber.Ctx, e *relay.Error) error {
	switch {
	case e.Unauthorized():
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
	case len(e.Body) > 0:
		if e.ContentType != "" {
			c.Set(fiber.HeaderContentType, e.ContentType)
		}
		return c.Status(e.HTTPStatus()).Send(e.Body)
	default:
		return c.Status(e.HTTPStatus()).JSON(ErrorResponse{Error: e.Message})
	}
}

// sendRequestError answers a request that could not be sent upstream.
func (p *Proxy) sendRequestError(c *fiber.Ctx, err error) error {
	if errors.Is(err, errUnauthorized) {
		p.logger.Info("request rejected by credentials", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
	}
	p.logger.Error("failed to create upstream request", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
}
