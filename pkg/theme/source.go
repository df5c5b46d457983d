// Package theme overlays streamed theme updates on top of cached theme
// defaults so clients always receive a complete theme object.
package theme

import (
	"context"
	"errors"
)

// ErrNoSource is returned by a Cache that has no Source to load from.
var ErrNoSource = errors.New("no theme source configured")

// Defaults maps a theme ID to its default theme object. Values are shared
// between sessions and must be treated as read-only.
type Defaults map[string]map[string]any

// Source loads the full set of theme defaults.
type Source interface {
	Load(ctx context.Context) (Defaults, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (Defaults, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (Defaults, error) {
	return f(ctx)
}

// Static is a Source that always returns the same defaults.
type Static Defaults

// Load returns the static defaults.
func (s Static) Load(context.Context) (Defaults, error) {
	return Defaults(s), nil
}
