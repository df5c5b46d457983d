package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamrelay/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		m = dotdir.NewManager()
	})

	chdir := func(dir string) {
		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(os.Chdir, orig)
	}

	Describe("Target", func() {
		It("creates the override directory if it doesn't exist", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		It("prefers the override over a local .streamrelay dir", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, dotdir.DirName), 0o755)).To(Succeed())
			chdir(tmpDir)

			override := filepath.Join(tmpDir, "override")
			result, err := m.Target(override)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(override))
		})

		It("returns the local .streamrelay dir when no override is provided", func() {
			local := filepath.Join(tmpDir, dotdir.DirName)
			Expect(os.Mkdir(local, 0o755)).To(Succeed())
			chdir(tmpDir)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(local))
		})

		It("falls back to the home .streamrelay dir", func() {
			home := filepath.Join(tmpDir, "home")
			Expect(os.MkdirAll(filepath.Join(home, dotdir.DirName), 0o755)).To(Succeed())
			work := filepath.Join(tmpDir, "work")
			Expect(os.Mkdir(work, 0o755)).To(Succeed())
			chdir(work)
			GinkgoT().Setenv("HOME", home)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(home, dotdir.DirName)))
		})

		It("returns an empty path when nothing exists", func() {
			empty := filepath.Join(tmpDir, "empty")
			Expect(os.Mkdir(empty, 0o755)).To(Succeed())
			chdir(empty)
			GinkgoT().Setenv("HOME", empty)

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})
	})

	Describe("Home", func() {
		It("creates ~/.streamrelay", func() {
			GinkgoT().Setenv("HOME", tmpDir)

			dir, err := m.Home()
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(Equal(filepath.Join(tmpDir, dotdir.DirName)))
			Expect(dir).To(BeADirectory())
		})
	})
})
