// Streamrelay CI
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/streamrelay/internal/dagger"
)

// Streamrelay is the CI module for the relay.
type Streamrelay struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Streamrelay {
	return &Streamrelay{
		Source: source,
	}
}

// goContainer returns a Go container with caches and the project source
// mounted. The relay is pure Go, so CGO is off.
func (s *Streamrelay) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", s.Source)
}

// Test runs the unit tests with the race detector.
func (s *Streamrelay) Test(ctx context.Context) (string, error) {
	return s.goContainer().
		WithEnvVariable("CGO_ENABLED", "1").
		WithExec([]string{"apk", "add", "--no-cache", "gcc", "musl-dev"}).
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
