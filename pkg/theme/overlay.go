package theme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/papercomputeco/streamrelay/pkg/metrics"
	"github.com/papercomputeco/streamrelay/pkg/sse"
)

// ErrNotObject is returned by Overlay when the payload is valid JSON but not
// an object.
var ErrNotObject = errors.New("theme payload is not a JSON object")

// Overlay shallow-merges payload over base and returns the encoded result.
// Keys in payload win. base is not modified.
func Overlay(base map[string]any, payload []byte) ([]byte, error) {
	var patch map[string]any
	if err := json.Unmarshal(payload, &patch); err != nil {
		return nil, fmt.Errorf("decoding theme payload: %w", err)
	}
	if patch == nil {
		return nil, ErrNotObject
	}

	merged := make(map[string]any, len(base)+len(patch))
	maps.Copy(merged, base)
	maps.Copy(merged, patch)
	return json.Marshal(merged)
}

// OverlayTransform returns a frame transform for the theme event relay. Each
// event's data is merged over the cached defaults for themeID, or over an
// empty object when there are none. Frames without data are forwarded as is;
// frames whose data cannot be merged are forwarded unmodified and logged.
// A nil cache always uses the empty base.
func OverlayTransform(ctx context.Context, cache *Cache, themeID string, logger *slog.Logger) func(sse.Frame) sse.Frame {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("theme", themeID)

	return func(frame sse.Frame) sse.Frame {
		event := sse.ParseEvent(frame.Raw)
		if event.Data == "" {
			return frame
		}

		base := baseFor(ctx, cache, themeID, logger)

		merged, err := Overlay(base, []byte(event.Data))
		if err != nil {
			logger.Warn("forwarding theme frame without overlay", "error", err)
			metrics.OverlayPassthrough.Inc()
			return frame
		}

		event.Data = string(merged)
		return sse.EventFraming.Frame(event.Encode())
	}
}

func baseFor(ctx context.Context, cache *Cache, themeID string, logger *slog.Logger) map[string]any {
	if cache == nil {
		return nil
	}
	base, _, err := cache.Get(ctx, themeID)
	if err != nil {
		logger.Warn("theme defaults unavailable, using empty base", "error", err)
		return nil
	}
	return base
}
