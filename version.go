package confidence

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/blang/semver/v4"
)

const sdkID = "confidence-go-sdk"

// sdkVersion returns the version reported in resolve/apply payloads. The
// build info is authoritative; "unknown" is reported during development.
func sdkVersion() string {
	const unknownVersion = "unknown"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknownVersion
	}

	version := info.Main.Version
	if version == "" || version == "(devel)" {
		return unknownVersion
	}
	return version
}

// getUserAgent returns the User-Agent header value in the format
// "confidence-go-sdk/<version>". The version is the one the client reports
// in request payloads, so an override keeps the header in agreement.
func getUserAgent(version string) string {
	return fmt.Sprintf("%s/%s", sdkID, version)
}

// validateVersionOverride checks a WithSDKVersion value. An optional leading
// "v" is accepted; the remainder must be a valid semantic version.
func validateVersionOverride(version string) error {
	trimmed := strings.TrimPrefix(version, "v")
	if _, err := semver.Parse(trimmed); err != nil {
		return fmt.Errorf("confidence: invalid sdk version %q: %w", version, err)
	}
	return nil
}
