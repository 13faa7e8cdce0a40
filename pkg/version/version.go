// Package version provides push protocol version parsing, comparison and
// WebSocket subprotocol helpers.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the push protocol version implemented by this library.
const Current = "1.0"

// Header carries Current on requests that cannot negotiate a subprotocol.
const Header = "X-Livesync-Version"

// subprotocolPrefix prefixes the major version in a subprotocol name.
const subprotocolPrefix = "livesync.v"

// ErrIncompatible is returned when the server selected a protocol with a
// different major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// Version is a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	ma, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	mi, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return Version{Major: uint16(ma), Minor: uint16(mi)}, nil
}

// MustParse is Parse for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if other has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Subprotocol returns the WebSocket subprotocol for a major version:
// "livesync.vN".
func Subprotocol(major uint16) string {
	return subprotocolPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromSubprotocol extracts the major version from a subprotocol name.
func MajorFromSubprotocol(p string) (uint16, error) {
	suffix, ok := strings.CutPrefix(p, subprotocolPrefix)
	if !ok {
		return 0, fmt.Errorf("not a livesync subprotocol: %q", p)
	}
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in subprotocol: %q", p)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in subprotocol %q: %w", p, err)
	}
	return uint16(major), nil
}

// SupportedSubprotocols returns the subprotocols offered during the
// upgrade. Currently only major version 1.
func SupportedSubprotocols() []string {
	return []string{Subprotocol(MustParse(Current).Major)}
}

// CheckSubprotocol validates the subprotocol the server selected. Servers
// that ignore subprotocols select none, which is accepted.
func CheckSubprotocol(selected string) error {
	if selected == "" {
		return nil
	}
	major, err := MajorFromSubprotocol(selected)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	if !MustParse(Current).Compatible(Version{Major: major}) {
		return fmt.Errorf("%w: server selected %q, want %v", ErrIncompatible, selected, SupportedSubprotocols())
	}
	return nil
}
