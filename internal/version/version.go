// Package version carries build identity, stamped via -ldflags.
package version

var (
	// Service is the service name reported by the health endpoint.
	Service = "localizer"
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
