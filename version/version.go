// Package version holds the library version string shared by every MADS
// executable and exchanged between agents and the broker's settings service.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// LibVersion is the version string reported by this build. It travels in
// every settings-service response and is compared major/minor against the
// version an agent claims when it requests its configuration.
const LibVersion = "2.0.0"

// Compatible reports whether two "major.minor.patch"-shaped version strings
// agree on major and minor. Patch versions are allowed to drift.
func Compatible(a, b string) bool {
	aMaj, aMin, errA := majorMinor(a)
	bMaj, bMin, errB := majorMinor(b)
	if errA != nil || errB != nil {
		return false
	}
	return aMaj == bMaj && aMin == bMin
}

func majorMinor(v string) (int, int, error) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q: %w", v, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q: %w", v, err)
	}
	return major, minor, nil
}
