// Package version provides protocol version parsing, comparison, and
// the client/device negotiation rule.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the newest protocol version this library implements.
const Current = "3.1"

// SpecVersion represents a parsed "major.minor" protocol version.
type SpecVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (SpecVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return SpecVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return SpecVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return SpecVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return SpecVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse parses a version string and panics on failure.
// Intended for constants and tests.
func MustParse(s string) SpecVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v SpecVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0, or 1 depending on whether v is older than,
// equal to, or newer than other.
func (v SpecVersion) Compare(other SpecVersion) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor != other.Minor:
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// AtLeast returns true if v is the same as or newer than other.
func (v SpecVersion) AtLeast(other SpecVersion) bool {
	return v.Compare(other) >= 0
}

// Negotiate returns the version both sides can speak: the lower of the
// client's configured maximum and the device-reported version.
func Negotiate(configuredMax, device SpecVersion) SpecVersion {
	if device.Compare(configuredMax) < 0 {
		return device
	}
	return configuredMax
}
