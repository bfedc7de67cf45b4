// Package pkgerrors holds the sentinel errors shared across the resolver,
// sources, downloader, linker, and publisher, following the project's
// errors.New-sentinel-plus-%w-wrapping style rather than a custom error
// type hierarchy.
package pkgerrors

import "errors"

var (
	// ErrNotFound means a package, version, or index entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the resolver found two incompatible versions of the
	// same package reachable via non-dev edges.
	ErrConflict = errors.New("conflicting dependency versions")

	// ErrUnsatisfiedPeer means a peer dependency edge has no compatible
	// provider in the consumer's own subgraph.
	ErrUnsatisfiedPeer = errors.New("unsatisfied peer dependency")

	// ErrPolicyViolation covers index policy rejections: disallowed git or
	// compat dependencies, oversized archives, Roblox packages depending on
	// non-Roblox packages.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrScriptFailure means an external helper script (sourcemap
	// generator, Roblox sync config generator) exited non-zero or produced
	// unparseable output.
	ErrScriptFailure = errors.New("external script failed")

	// ErrDecode covers UTF-8, TOML, or JSON decode failures encountered
	// while reading source-provided data.
	ErrDecode = errors.New("decode failed")

	// ErrGitTransport covers connect/fetch/clone/open/peel/lookup failures
	// against an index or git dependency repository.
	ErrGitTransport = errors.New("git transport failed")
)
