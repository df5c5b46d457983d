package theme_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/theme"
)

var _ = Describe("FileSource", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("loads JSON defaults", func() {
		path := write("themes.json", `{"dark":{"background":"#000"}}`)
		defaults, err := theme.NewFileSource(path).Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(defaults).To(HaveKeyWithValue("dark", HaveKeyWithValue("background", "#000")))
	})

	It("loads TOML defaults", func() {
		path := write("themes.toml", "[dark]\nbackground = \"#000\"\nradius = 4\n")
		defaults, err := theme.NewFileSource(path).Load(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(defaults["dark"]).To(HaveKeyWithValue("background", "#000"))
		Expect(defaults["dark"]).To(HaveKeyWithValue("radius", BeEquivalentTo(4)))
	})

	It("fails on a missing file", func() {
		_, err := theme.NewFileSource(filepath.Join(dir, "nope.json")).Load(context.Background())
		Expect(err).To(MatchError(ContainSubstring("reading theme file")))
	})

	It("fails on malformed content", func() {
		path := write("themes.json", `{"dark":`)
		_, err := theme.NewFileSource(path).Load(context.Background())
		Expect(err).To(MatchError(ContainSubstring("parsing theme file")))
	})

	It("invalidates the cache when the file changes", func() {
		path := write("themes.json", `{"dark":{"background":"#000"}}`)
		src := theme.NewFileSource(path)
		cache := theme.NewCache(src)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		watchDone := make(chan error, 1)
		go func() { watchDone <- src.Watch(ctx, cache, nil) }()

		base, _, err := cache.Get(ctx, "dark")
		Expect(err).NotTo(HaveOccurred())
		Expect(base).To(HaveKeyWithValue("background", "#000"))

		// Give the watcher time to register before writing.
		time.Sleep(100 * time.Millisecond)
		write("themes.json", `{"dark":{"background":"#111"}}`)

		Eventually(func() any {
			base, _, _ := cache.Get(ctx, "dark")
			return base["background"]
		}).Should(Equal("#111"))

		cancel()
		Eventually(watchDone).Should(Receive(BeNil()))
	})
})
