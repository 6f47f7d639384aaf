// Package version holds build-time version information.
// The variables are overridden at build time via -ldflags.
package version

// Set via -ldflags "-X github.com/sensorvision/pilot/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Map returns version info as a map for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
