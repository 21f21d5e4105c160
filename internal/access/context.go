// Package access implements the Engine's access context: the
// (uid, gid, capabilities) triple consulted before every operation
// (spec.md §3.7), modelled on a POSIX-style capability bitmask.
package access

// CapSet is a bitmask of capabilities held by a principal. Individual
// bits are a closed set (spec.md §6.3); composites are built by OR-ing
// them together, the way POSIX capability sets compose EFFECTIVE,
// PERMITTED and INHERITABLE into CAPS.
type CapSet uint32

const (
	// CapKernel is sufficient for any operation not classified
	// deny-always (spec.md §3.7).
	CapKernel CapSet = 1 << iota
	CapFreeMemory
	CapKernelMemory
	CapSignalProcesses
	CapProcessAdmin
	CapHideFiles
	CapFSAdmin
)

// Composite sets named in spec.md §6.3.
const (
	CapUser       = CapHideFiles
	CapKernelFull = CapKernel | CapFreeMemory | CapKernelMemory |
		CapSignalProcesses | CapProcessAdmin | CapHideFiles | CapFSAdmin
)

// Has reports whether every bit in want is set in c.
func (c CapSet) Has(want CapSet) bool {
	return c&want == want
}

// HasAny reports whether at least one bit in want is set in c.
func (c CapSet) HasAny(want CapSet) bool {
	return c&want != 0
}

// String renders the set as a "|"-joined list of symbolic names, for
// audit entries and diagnostics.
func (c CapSet) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		bit  CapSet
		name string
	}{
		{CapKernel, "kernel"},
		{CapFreeMemory, "free-memory"},
		{CapKernelMemory, "kernel-memory"},
		{CapSignalProcesses, "signal-processes"},
		{CapProcessAdmin, "process-admin"},
		{CapHideFiles, "hide-files"},
		{CapFSAdmin, "fs-admin"},
	}
	out := ""
	for _, n := range names {
		if c.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// Context is the principal evaluated against every Entry and every
// Policy Record (spec.md §3.7). It is process-wide state for the
// Engine: exactly one Context is current at a time.
type Context struct {
	UID  uint32
	GID  uint32
	Caps CapSet
}

// Default returns an unprivileged context: uid/gid 0, capability set
// CapUser. This mirrors an ordinary logged-in user, not root.
func Default() Context {
	return Context{UID: 0, GID: 0, Caps: CapUser}
}

// IsOwner reports whether ctx's uid matches owner.
func (ctx Context) IsOwner(owner uint32) bool {
	return ctx.UID == owner
}

// Privileged reports whether ctx holds the kernel capability, which
// overrides ordinary permission checks (spec.md §4.2).
func (ctx Context) Privileged() bool {
	return ctx.Caps.Has(CapKernel)
}
