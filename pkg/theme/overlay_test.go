package theme_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/sse"
	"github.com/papercomputeco/streamrelay/pkg/theme"
)

func decode(raw string) map[string]any {
	var out map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(raw), &out)).To(Succeed())
	return out
}

var _ = Describe("Overlay", func() {
	It("merges the payload over the base with payload keys winning", func() {
		base := map[string]any{"color": "blue", "font": "serif"}
		out, err := theme.Overlay(base, []byte(`{"color":"red","size":12}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(decode(string(out))).To(Equal(map[string]any{
			"color": "red",
			"font":  "serif",
			"size":  float64(12),
		}))
	})

	It("does not modify the base", func() {
		base := map[string]any{"color": "blue"}
		_, err := theme.Overlay(base, []byte(`{"color":"red","extra":true}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(base).To(Equal(map[string]any{"color": "blue"}))
	})

	It("treats a nil base as empty", func() {
		out, err := theme.Overlay(nil, []byte(`{"a":1}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(`{"a":1}`))
	})

	It("rejects invalid JSON", func() {
		_, err := theme.Overlay(nil, []byte(`{"a":`))
		Expect(err).To(HaveOccurred())
	})

	It("rejects payloads that are not objects", func() {
		_, err := theme.Overlay(nil, []byte(`null`))
		Expect(err).To(MatchError(theme.ErrNotObject))

		_, err = theme.Overlay(nil, []byte(`[1,2]`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("OverlayTransform", func() {
	var (
		ctx   context.Context
		cache *theme.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		cache = theme.NewCache(theme.Static{
			"dark": {"background": "#000", "foreground": "#fff"},
		})
	})

	frame := func(raw string) sse.Frame {
		return sse.EventFraming.Frame(raw)
	}

	It("re-emits the merged object in the event data", func() {
		transform := theme.OverlayTransform(ctx, cache, "dark", nil)
		out := transform(frame("event: theme\ndata: {\"foreground\":\"#eee\"}"))

		ev := sse.ParseEvent(out.Raw)
		Expect(ev.Type).To(Equal("theme"))
		Expect(decode(ev.Data)).To(Equal(map[string]any{
			"background": "#000",
			"foreground": "#eee",
		}))
		Expect(out.Payload).NotTo(BeNil())
	})

	It("uses an empty base for unknown themes", func() {
		transform := theme.OverlayTransform(ctx, cache, "light", nil)
		out := transform(frame(`data: {"foreground":"#111"}`))
		Expect(sse.ParseEvent(out.Raw).Data).To(Equal(`{"foreground":"#111"}`))
	})

	It("uses an empty base without a cache", func() {
		transform := theme.OverlayTransform(ctx, nil, "dark", nil)
		out := transform(frame(`data: {"x":1}`))
		Expect(sse.ParseEvent(out.Raw).Data).To(Equal(`{"x":1}`))
	})

	It("uses an empty base when the defaults cannot be loaded", func() {
		attempts := 0
		broken := theme.NewCache(theme.SourceFunc(func(context.Context) (theme.Defaults, error) {
			attempts++
			return nil, errors.New("unavailable")
		}))
		transform := theme.OverlayTransform(ctx, broken, "dark", nil)
		for range 3 {
			out := transform(frame(`data: {"x":1}`))
			Expect(sse.ParseEvent(out.Raw).Data).To(Equal(`{"x":1}`))
		}
		Expect(attempts).To(Equal(1))
	})

	It("forwards frames with invalid JSON unmodified", func() {
		transform := theme.OverlayTransform(ctx, cache, "dark", nil)
		in := frame(`data: {"foreground":`)
		Expect(transform(in)).To(Equal(in))
	})

	It("forwards non-object payloads unmodified", func() {
		transform := theme.OverlayTransform(ctx, cache, "dark", nil)
		in := frame(`data: "just a string"`)
		Expect(transform(in)).To(Equal(in))
	})

	It("forwards frames without data unmodified", func() {
		transform := theme.OverlayTransform(ctx, cache, "dark", nil)
		in := frame(": keep-alive")
		Expect(transform(in)).To(Equal(in))
	})

	It("never mutates the cached defaults", func() {
		transform := theme.OverlayTransform(ctx, cache, "dark", nil)
		transform(frame(`data: {"background":"#123","new":1}`))

		base, _, err := cache.Get(ctx, "dark")
		Expect(err).NotTo(HaveOccurred())
		Expect(base).To(Equal(map[string]any{"background": "#000", "foreground": "#fff"}))
	})
})
