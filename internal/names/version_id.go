package names

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// VersionId pairs a concrete version with the target it was built for. Two
// releases of the same PackageName may coexist in a resolved graph if their
// TargetKind differs.
type VersionId struct {
	version *semver.Version
	kind    TargetKind
}

// NewVersionId builds a VersionId from an already-parsed semver.Version.
func NewVersionId(version *semver.Version, kind TargetKind) VersionId {
	return VersionId{version: version, kind: kind}
}

// ParseVersionId parses the "1.2.3 roblox" lockfile spelling of a VersionId.
func ParseVersionId(s string) (VersionId, error) {
	version, kindStr, ok := strings.Cut(s, " ")
	if !ok {
		return VersionId{}, fmt.Errorf("invalid version id %q: expected \"<version> <target>\"", s)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return VersionId{}, fmt.Errorf("invalid version id %q: %w", s, err)
	}
	kind, err := ParseTargetKind(kindStr)
	if err != nil {
		return VersionId{}, fmt.Errorf("invalid version id %q: %w", s, err)
	}
	return VersionId{version: v, kind: kind}, nil
}

// Version returns the semantic version.
func (v VersionId) Version() *semver.Version { return v.version }

// TargetKind returns the target the version was built for.
func (v VersionId) TargetKind() TargetKind { return v.kind }

// String renders the "1.2.3 roblox" lockfile spelling.
func (v VersionId) String() string {
	return v.version.String() + " " + v.kind.String()
}

// Compare orders VersionIds first by version (descending callers may invert)
// then by target kind discriminant, matching the resolver's deterministic
// tie-break rule.
func (v VersionId) Compare(other VersionId) int {
	if c := v.version.Compare(other.version); c != 0 {
		return c
	}
	return v.kind.CompareDiscriminant(other.kind)
}

// MarshalText implements encoding.TextMarshaler.
func (v VersionId) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *VersionId) UnmarshalText(text []byte) error {
	parsed, err := ParseVersionId(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
