// Package namespace implements the Engine's per-view directory tree
// (spec.md §4.2) and the DAG of immutable views it is layered over
// (spec.md §4.3). The two are kept in one package because a namespace
// mutation and the change-set it produces are two views of the same
// write: entries live in a flat arena (Design Notes §9: "arena +
// index"), and each view only records which entry snapshots it added,
// replaced, or hid relative to its parent.
package namespace

import (
	"time"

	"github.com/ghartrid/voltree/internal/blobpool"
)

// EntryID is a stable logical identity for a namespace node: a
// directory slot, not a byte-for-byte snapshot. The same EntryID can
// have a different attribute snapshot in different views (e.g. after
// append or chmod), the way a git blob's path can point at different
// blob ids across commits.
type EntryID uint64

// RootID is the identity of the volume's root directory. It is
// allocated once, in the root view, and never changes.
const RootID EntryID = 0

// Kind closes the set of entry kinds (spec.md §3.2).
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
	KindHardlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindHardlink:
		return "hardlink"
	default:
		return "unknown"
	}
}

// Entry is one immutable attribute snapshot for an EntryID, as visible
// in some view. Entry values are never mutated in place: an operation
// that changes an entry's attributes allocates a new Entry value and
// records it in the current head view's change-set under the same
// EntryID (see view.go).
type Entry struct {
	ID        EntryID
	Name      string
	Kind      Kind
	Owner     uint32
	Perm      uint16 // Unix-like rwx bits, e.g. 0o644
	CreatedAt time.Time
	LinkCount int
	Hidden    bool

	// BlobHash is set for KindFile and KindHardlink.
	BlobHash blobpool.Hash

	// Children is the ordered list of child EntryIDs, set for
	// KindDirectory only. Order is insertion order (spec.md §4.2
	// "list(path): iterate ... in insertion order").
	Children []EntryID

	// Target is the symlink target path, set for KindSymlink only.
	// Per spec.md §4.2, the target is stored verbatim and is not
	// resolved at creation time.
	Target string
}

// clone returns a deep-enough copy of e suitable as the basis for a
// new snapshot: Children is copied so the original slice (visible in
// an ancestor view) is never mutated in place.
func (e *Entry) clone() *Entry {
	cp := *e
	if e.Children != nil {
		cp.Children = make([]EntryID, len(e.Children))
		copy(cp.Children, e.Children)
	}
	return &cp
}

// indexOfChildID returns the position of id within children, or -1.
// Children only stores ids; callers that start from a name resolve it
// to an id through the Graph first.
func indexOfChildID(children []EntryID, id EntryID) int {
	for i, c := range children {
		if c == id {
			return i
		}
	}
	return -1
}
