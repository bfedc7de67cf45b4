package names

import "fmt"

// TargetKind is the closed set of runtimes a package can be built for.
type TargetKind int

const (
	// RobloxPlayer is code shared between the Roblox client and server.
	RobloxPlayer TargetKind = iota
	// RobloxServer is code that only runs on the Roblox server.
	RobloxServer
	// ScriptRuntime is the Lune general-purpose Luau runtime.
	ScriptRuntime
	// GenericLuau is any other runtime that consumes plain Luau source.
	GenericLuau
)

// String renders the on-the-wire / manifest spelling of a TargetKind.
func (k TargetKind) String() string {
	switch k {
	case RobloxPlayer:
		return "roblox"
	case RobloxServer:
		return "roblox_server"
	case ScriptRuntime:
		return "lune"
	case GenericLuau:
		return "luau"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseTargetKind parses the manifest spelling of a TargetKind.
func ParseTargetKind(s string) (TargetKind, error) {
	switch s {
	case "roblox":
		return RobloxPlayer, nil
	case "roblox_server":
		return RobloxServer, nil
	case "lune":
		return ScriptRuntime, nil
	case "luau":
		return GenericLuau, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q", s)
	}
}

// IsRoblox reports whether the kind is one of the two Roblox targets.
func (k TargetKind) IsRoblox() bool {
	return k == RobloxPlayer || k == RobloxServer
}

// CompatibleWith reports whether a package built for this (consumer) kind
// may depend on a package built for producer. Roblox kinds may only depend
// on other Roblox kinds; every other kind may depend on anything.
func (k TargetKind) CompatibleWith(producer TargetKind) bool {
	if k.IsRoblox() && !producer.IsRoblox() {
		return false
	}
	return true
}

// discriminant gives a stable, arbitrary total order over TargetKind used
// to break resolver ties when more than one compatible target satisfies a
// requirement equally well.
func (k TargetKind) discriminant() int {
	return int(k)
}

// CompareDiscriminant orders two kinds by their stable discriminant.
func (k TargetKind) CompareDiscriminant(other TargetKind) int {
	return k.discriminant() - other.discriminant()
}

// PackagesFolder returns the directory name, relative to a consuming
// package's own root, under which a dependency of kind dep should be
// installed. Packages of different kinds never share a folder so that a
// Roblox player package and its Lune-only dev tooling don't collide.
func (k TargetKind) PackagesFolder(dep TargetKind) string {
	switch dep {
	case RobloxPlayer:
		return "roblox_packages"
	case RobloxServer:
		return "roblox_server_packages"
	case ScriptRuntime:
		return "lune_packages"
	case GenericLuau:
		return "luau_packages"
	default:
		return "packages"
	}
}
