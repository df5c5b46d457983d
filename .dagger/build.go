package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/streamrelay/internal/dagger"
)

// Build and return directory of go binaries
func (s *Streamrelay) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	for _, goos := range []string{"linux", "darwin"} {
		for _, goarch := range []string{"amd64", "arm64"} {
			path := fmt.Sprintf("%s/%s/", goos, goarch)

			build := s.goContainer().
				WithEnvVariable("GOOS", goos).
				WithEnvVariable("GOARCH", goarch).
				WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/streamrelay"})

			outputs = outputs.WithDirectory(path, build.Directory(path))
		}
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (s *Streamrelay) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	const pkg = "github.com/papercomputeco/streamrelay/pkg/utils"
	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", pkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", pkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", pkg, time.Now().UTC().Format(time.RFC3339)),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
