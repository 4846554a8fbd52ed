package domain

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	dErrors "voltgrid/pkg/domain-errors"
)

// VersionNumber is an OCPI protocol version such as "2.1.1" or "2.2".
// This is a domain primitive that enforces validity at parse time.
type VersionNumber string

// Versions this platform knows how to speak.
const (
	Version211 VersionNumber = "2.1.1"
	Version22  VersionNumber = "2.2"
	Version221 VersionNumber = "2.2.1"
)

// ParseVersionNumber validates a dotted numeric version with one to three components.
func ParseVersionNumber(s string) (VersionNumber, error) {
	v := VersionNumber(strings.TrimSpace(s))
	if !semver.IsValid(v.canonical()) || strings.ContainsAny(string(v), "-+") {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid version %q", s))
	}
	return v, nil
}

// canonical renders the version in the "vMAJOR.MINOR.PATCH" form semver expects.
func (v VersionNumber) canonical() string {
	return "v" + string(v)
}

func (v VersionNumber) String() string {
	return string(v)
}

func (v VersionNumber) IsNil() bool {
	return v == ""
}

// Compare orders versions numerically, so "2.10" sorts after "2.9".
// Missing components count as zero: "2.2" == "2.2.0".
func (v VersionNumber) Compare(other VersionNumber) int {
	return semver.Compare(v.canonical(), other.canonical())
}

// IsAtLeast returns true if this version is >= other.
func (v VersionNumber) IsAtLeast(other VersionNumber) bool {
	return v.Compare(other) >= 0
}

// Highest returns the numerically highest version, or "" for an empty slice.
func Highest(versions []VersionNumber) VersionNumber {
	if len(versions) == 0 {
		return ""
	}
	return slices.MaxFunc(versions, VersionNumber.Compare)
}

// SupportedVersions returns the versions this platform can advertise, oldest first.
func SupportedVersions() []VersionNumber {
	return []VersionNumber{Version211, Version22, Version221}
}
