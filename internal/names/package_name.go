// Package names implements the identifiers used throughout the package
// manager: scoped package names and versioned, target-tagged version ids.
package names

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern matches a single scope or name segment: lower-case
// alphanumerics with single internal dashes or underscores as separators.
var segmentPattern = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

// ErrInvalidPackageName is returned when a "scope/name" string fails the
// grammar above.
var ErrInvalidPackageName = errors.New("invalid package name")

// PackageName is a two-part identifier "scope/name". Values are comparable
// and hashable, so they can be used directly as map keys in a
// DependencyGraph.
type PackageName struct {
	scope, name string
}

// NewPackageName parses and validates "scope/name".
func NewPackageName(s string) (PackageName, error) {
	scope, name, ok := strings.Cut(s, "/")
	if !ok {
		return PackageName{}, fmt.Errorf("%w: %q: missing scope separator", ErrInvalidPackageName, s)
	}
	if !segmentPattern.MatchString(scope) {
		return PackageName{}, fmt.Errorf("%w: %q: invalid scope %q", ErrInvalidPackageName, s, scope)
	}
	if !segmentPattern.MatchString(name) {
		return PackageName{}, fmt.Errorf("%w: %q: invalid name %q", ErrInvalidPackageName, s, name)
	}
	return PackageName{scope: scope, name: name}, nil
}

// Scope returns the scope segment.
func (p PackageName) Scope() string { return p.scope }

// Name returns the name segment.
func (p PackageName) Name() string { return p.name }

// String renders "scope/name".
func (p PackageName) String() string {
	return p.scope + "/" + p.name
}

// Escaped renders the name in the "scope+name" form used for on-disk
// container folder names, where '/' is not a valid path separator to keep
// within a single directory level.
func (p PackageName) Escaped() string {
	return p.scope + "+" + p.name
}

// Compare orders PackageNames lexicographically by their string form.
func (p PackageName) Compare(other PackageName) int {
	return strings.Compare(p.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler so PackageName can be used
// as a TOML/YAML map key and as a struct field.
func (p PackageName) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PackageName) UnmarshalText(text []byte) error {
	parsed, err := NewPackageName(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
