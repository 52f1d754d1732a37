package wire

import (
	"fmt"
	"strings"
)

// Version information for the wire module.
const (
	// Version is the current version of the wire module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

// VersionID packs a "major.minor.patch" version into the informational
// version_id greeting field: major<<16 | minor<<8 | patch.
func VersionID(version string) uint32 {
	var major, minor, patch uint32
	_, _ = fmt.Sscanf(strings.TrimPrefix(version, "v"), "%d.%d.%d", &major, &minor, &patch)
	return major<<16 | (minor&0xff)<<8 | patch&0xff
}
