package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// errUnsupportedPlatform indicates the host OS/architecture pair is not in the
// supported set.
var errUnsupportedPlatform = errors.New("unsupported platform")

// Platform identifies a supported target OS family and CPU architecture.
// Values are produced by Detect and are immutable afterwards.
type Platform struct {
	// OS is the normalized, lowercase operating system family.
	OS string
	// Arch is the normalized CPU architecture used in asset names.
	Arch string
	// MachineArch is the architecture string as reported by the host,
	// recorded verbatim in the installation receipt.
	MachineArch string
}

// supported is the closed set of platform identifiers with published assets.
//
//nolint:gochecknoglobals // Closed enumeration shared by Detect and error messages.
var supported = map[string]struct{}{
	"darwin-arm64": {},
	"linux-x86_64": {},
}

// ID returns the platform identifier used in asset names, e.g. "linux-x86_64".
func (p Platform) ID() string {
	return p.OS + "-" + p.Arch
}

// Detect maps a raw OS name and machine architecture to a supported Platform.
// OS names are matched case-insensitively ("Darwin" and "darwin" are the same);
// the common "amd64" alias is normalized to "x86_64", other architectures pass
// through unchanged. Any pair outside the supported set is rejected.
func Detect(osName, machineArch string) (Platform, error) {
	var normalizedOS string

	switch strings.ToLower(strings.TrimSpace(osName)) {
	case "darwin":
		normalizedOS = "darwin"
	case "linux":
		normalizedOS = "linux"
	default:
		return Platform{}, fmt.Errorf(
			"%w: os %q, arch %q (supported: %s)",
			errUnsupportedPlatform, osName, machineArch, supportedList())
	}

	arch := strings.TrimSpace(machineArch)
	normalizedArch := arch
	if normalizedArch == "amd64" {
		normalizedArch = "x86_64"
	}

	p := Platform{
		OS:          normalizedOS,
		Arch:        normalizedArch,
		MachineArch: arch,
	}

	if _, ok := supported[p.ID()]; !ok {
		return Platform{}, fmt.Errorf(
			"%w: os %q, arch %q (supported: %s)",
			errUnsupportedPlatform, osName, machineArch, supportedList())
	}

	return p, nil
}

// DetectHost detects the platform of the running process.
func DetectHost() (Platform, error) {
	return Detect(runtime.GOOS, runtime.GOARCH)
}

// supportedList renders the supported identifiers in a stable order.
func supportedList() string {
	ids := make([]string, 0, len(supported))
	for id := range supported {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return strings.Join(ids, ", ")
}
