package contracts

import "fmt"

// Version is the application version, bumped on release.
const Version = "0.1.0-alpha.1"

// DataFormatVersion names the cache artifact and report layout. Bump it when
// an artifact written by an older build can no longer be read.
const DataFormatVersion = "v1"

// APIVersion names the HTTP API and WebSocket message schema.
const APIVersion = "v1"

// Build identity, injected with ldflags at release time.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionString is the banner printed by the binaries at startup.
func VersionString() string {
	return fmt.Sprintf("EMI Market Data Toolkit v%s", Version)
}
