// Package version carries build-time identification, set via ldflags:
//
//	go build -ldflags "-X github.com/courierchat/courier/internal/version.Version=1.0.0 \
//	                   -X github.com/courierchat/courier/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the semantic version, "dev" for unreleased builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"
)
