package app

import (
	"fmt"
	"log/slog"
)

// Version, Commit, and BuildTime are set via ldflags at build time.
// Example: go build -ldflags "-X github.com/heartmarshall/curation-backend/internal/app.Version=1.0.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const serviceName = "curation-backend"

// BuildVersion returns a formatted version string for startup logs and health endpoints.
func BuildVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
}

// buildAttrs tags every log line with the service and the build it came from.
func buildAttrs() []any {
	return []any{
		slog.String("service", serviceName),
		slog.Group("build",
			slog.String("version", Version),
			slog.String("commit", Commit),
		),
	}
}
