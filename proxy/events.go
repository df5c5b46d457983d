package proxy

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamrelay/pkg/relay"
	"github.com/papercomputeco/streamrelay/pkg/sse"
	"github.com/papercomputeco/streamrelay/pkg/theme"
)

const (
	routeEvents = "events"
	routeThemes = "themes"
	routeChat   = "chat"
)

// handleEvents relays an upstream event stream verbatim.
func (p *Proxy) handleEvents(c *fiber.Ctx) error {
	return p.relayEvents(c, routeEvents, "/events/"+c.Params("*"), nil)
}

// handleThemeEvents relays a theme event stream, merging every frame over
// the theme's cached defaults.
func (p *Proxy) handleThemeEvents(c *fiber.Ctx) error {
	themeID := c.Params("id")
	transform := theme.OverlayTransform(context.Background(), p.config.Themes, themeID, p.logger)
	return p.relayEvents(c, routeThemes, "/themes/"+url.PathEscape(themeID)+"/events", transform)
}

func (p *Proxy) relayEvents(c *fiber.Ctx, route, path string, transform func(sse.Frame) sse.Frame) error {
	req, err := p.newUpstreamRequest(c, http.MethodGet, path, nil)
	if err != nil {
		return p.sendRequestError(c, err)
	}
	req.Header.Set(fiber.HeaderAccept, "text/event-stream")

	p.logger.Debug("opening upstream event stream", "route", route, "path", path)

	s, rerr := p.guard.Connect(route, req, sse.EventFraming)
	if rerr != nil {
		return p.sendRelayError(c, rerr)
	}

	p.headerHandler.SetEventStreamHeaders(c)
	return p.stream(c, s, &relay.Pump{Transform: transform})
}
