package namespace

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/blobpool"
)

// MaxSymlinkDepth bounds symlink resolution (spec.md §4.2 resolve:
// "dereference symlinks up to a bounded depth (e.g. 16)").
const MaxSymlinkDepth = 16

// Perm bit positions, Unix-like (spec.md §3.2).
const (
	PermOwnerRead  uint16 = 0o400
	PermOwnerWrite uint16 = 0o200
	PermOwnerExec  uint16 = 0o100
	PermOtherRead  uint16 = 0o004
	PermOtherWrite uint16 = 0o002
	PermOtherExec  uint16 = 0o001
)

// Stat is the read-only view of an entry returned by stat (spec.md
// §4.2).
type Stat struct {
	ID        EntryID
	Kind      Kind
	Length    int64 // files only
	Owner     uint32
	Perm      uint16
	LinkCount int
	CreatedAt time.Time
	Target    string // symlinks only
}

// Tree is the per-volume namespace: a flat Entry arena shared across
// every View in graph (spec.md §4.2), always operated against one
// "current" view supplied by the caller (the Operations API tracks
// the branch's head view; Tree itself is stateless between calls).
type Tree struct {
	graph *Graph
	pool  *blobpool.Pool
}

// NewTree wires a Tree to the view graph and blob pool it mutates.
func NewTree(graph *Graph, pool *blobpool.Pool) *Tree {
	return &Tree{graph: graph, pool: pool}
}

// Delta summarises the effect of a mutation for the Quota Accountant
// (spec.md §4.6): bytes newly retained in the pool, net change in
// total blob references, and net change in view count (always 0 here;
// Engine-level snapshot/branch-create bump this separately).
type Delta struct {
	Bytes int64
	Refs  int64
	Views int64
}

func splitPath(p string) ([]string, error) {
	if p == "" || p[0] != '/' {
		return nil, fmt.Errorf("%w: path must be absolute: %q", apierr.ErrInvalidArgument, p)
	}
	clean := path.Clean(p)
	if clean == "/" {
		return nil, nil
	}
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	return parts, nil
}

func baseName(p string) string {
	return path.Base(path.Clean(p))
}

func dirName(p string) string {
	return path.Dir(path.Clean(p))
}

// resolveComponents walks components from the root, honouring hides
// and dereferencing any symlink encountered in a non-final position.
// followFinal controls whether a symlink landed on by the last
// component is itself dereferenced (true for resolve/read/stat, false
// for readlink). depth tracks total symlink hops across the whole
// call chain so a loop is caught regardless of where it occurs.
func (t *Tree) resolveComponents(view ViewID, parts []string, followFinal bool, depth int) (EntryID, *Entry, error) {
	cur := RootID
	for i := 0; i < len(parts); i++ {
		snap, vis, found := t.graph.Lookup(view, cur)
		if !found || !vis {
			return 0, nil, fmt.Errorf("%w: %s", apierr.ErrNotFound, parts[i])
		}
		if snap.Kind == KindSymlink {
			depth++
			if depth > MaxSymlinkDepth {
				return 0, nil, fmt.Errorf("%w: exceeded depth %d", apierr.ErrLoopDetected, MaxSymlinkDepth)
			}
			targetParts, err := splitPath(snap.Target)
			if err != nil {
				return 0, nil, err
			}
			remaining := append(append([]string{}, targetParts...), parts[i:]...)
			return t.resolveComponents(view, remaining, followFinal, depth)
		}
		if snap.Kind != KindDirectory {
			return 0, nil, fmt.Errorf("%w: %s", apierr.ErrNotADirectory, parts[i])
		}
		next, err := t.childByName(view, snap, parts[i])
		if err != nil {
			return 0, nil, err
		}
		cur = next
	}
	snap, vis, found := t.graph.Lookup(view, cur)
	if !found || !vis {
		return 0, nil, fmt.Errorf("%w: not visible", apierr.ErrNotFound)
	}
	if followFinal && snap.Kind == KindSymlink {
		depth++
		if depth > MaxSymlinkDepth {
			return 0, nil, fmt.Errorf("%w: exceeded depth %d", apierr.ErrLoopDetected, MaxSymlinkDepth)
		}
		targetParts, err := splitPath(snap.Target)
		if err != nil {
			return 0, nil, err
		}
		return t.resolveComponents(view, targetParts, followFinal, depth)
	}
	return cur, snap, nil
}

func (t *Tree) childByName(view ViewID, dir *Entry, name string) (EntryID, error) {
	for _, c := range dir.Children {
		snap, vis, found := t.graph.Lookup(view, c)
		if found && vis && snap.Name == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", apierr.ErrNotFound, name)
}

// Resolve walks path to its entry id and current snapshot, following
// a trailing symlink (spec.md §4.2 resolve).
func (t *Tree) Resolve(view ViewID, p string) (EntryID, *Entry, error) {
	return t.resolve(view, p, true)
}

// resolveLexical walks path to its entry id and current snapshot
// without dereferencing a symlink landed on by the final component
// (used by Readlink and by Chmod/Chown/Hide, which act on the link
// itself rather than its target).
func (t *Tree) resolveLexical(view ViewID, p string) (EntryID, *Entry, error) {
	return t.resolve(view, p, false)
}

func (t *Tree) resolve(view ViewID, p string, followFinal bool) (EntryID, *Entry, error) {
	parts, err := splitPath(p)
	if err != nil {
		return 0, nil, err
	}
	if len(parts) == 0 {
		snap, vis, found := t.graph.Lookup(view, RootID)
		if !found || !vis {
			return 0, nil, fmt.Errorf("%w: root", apierr.ErrNotFound)
		}
		return RootID, snap, nil
	}
	return t.resolveComponents(view, parts, followFinal, 0)
}

func toStat(snap *Entry, length int64) Stat {
	return Stat{
		ID: snap.ID, Kind: snap.Kind, Length: length, Owner: snap.Owner,
		Perm: snap.Perm, LinkCount: snap.LinkCount, CreatedAt: snap.CreatedAt,
		Target: snap.Target,
	}
}

// Stat returns attributes for path (spec.md §4.2 stat).
func (t *Tree) Stat(view ViewID, p string) (Stat, error) {
	_, snap, err := t.Resolve(view, p)
	if err != nil {
		return Stat{}, err
	}
	var length int64
	if snap.Kind == KindFile || snap.Kind == KindHardlink {
		l, err := t.pool.Length(snap.BlobHash)
		if err != nil {
			return Stat{}, err
		}
		length = int64(l)
	}
	return toStat(snap, length), nil
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name string
	Stat Stat
}

// List iterates a directory's visible children in insertion order
// (spec.md §4.2 list).
func (t *Tree) List(view ViewID, p string) ([]DirEntry, error) {
	_, snap, err := t.Resolve(view, p)
	if err != nil {
		return nil, err
	}
	if snap.Kind != KindDirectory {
		return nil, fmt.Errorf("%w: %s", apierr.ErrNotADirectory, p)
	}
	out := make([]DirEntry, 0, len(snap.Children))
	for _, c := range snap.Children {
		child, vis, found := t.graph.Lookup(view, c)
		if !found || !vis {
			continue
		}
		var length int64
		if child.Kind == KindFile || child.Kind == KindHardlink {
			l, err := t.pool.Length(child.BlobHash)
			if err == nil {
				length = int64(l)
			}
		}
		out = append(out, DirEntry{Name: child.Name, Stat: toStat(child, length)})
	}
	return out, nil
}

// Read returns a file's current byte content.
func (t *Tree) Read(view ViewID, p string) ([]byte, error) {
	_, snap, err := t.Resolve(view, p)
	if err != nil {
		return nil, err
	}
	if snap.Kind != KindFile && snap.Kind != KindHardlink {
		return nil, fmt.Errorf("%w: %s is a directory", apierr.ErrIsADirectory, p)
	}
	return t.pool.Get(snap.BlobHash)
}

// checkPermission evaluates ctx against entry for the given access bit
// (read/write/execute), honouring the kernel capability override
// (spec.md §4.2 "Permission model").
func checkPermission(ctx access.Context, entry *Entry, ownerBit, otherBit uint16) error {
	if ctx.Privileged() {
		return nil
	}
	var bit uint16
	if ctx.IsOwner(entry.Owner) {
		bit = ownerBit
	} else {
		bit = otherBit
	}
	if entry.Perm&bit == 0 {
		return fmt.Errorf("%w: entry %d", apierr.ErrPermDenied, entry.ID)
	}
	return nil
}

func (t *Tree) resolveParentDir(view ViewID, p string) (EntryID, *Entry, error) {
	parentPath := dirName(p)
	id, snap, err := t.Resolve(view, parentPath)
	if err != nil {
		return 0, nil, err
	}
	if snap.Kind != KindDirectory {
		return 0, nil, fmt.Errorf("%w: %s", apierr.ErrNotADirectory, parentPath)
	}
	return id, snap, nil
}

func (t *Tree) putChild(view ViewID, parentID EntryID, parent *Entry, childID EntryID) error {
	updated := parent.clone()
	updated.Children = append(updated.Children, childID)
	return t.graph.PutEntry(view, updated)
}

func (t *Tree) replaceChild(view ViewID, parentID EntryID, parent *Entry, oldID, newID EntryID) error {
	updated := parent.clone()
	idx := indexOfChildID(updated.Children, oldID)
	if idx < 0 {
		return fmt.Errorf("%w: child not found", apierr.ErrNotFound)
	}
	updated.Children[idx] = newID
	return t.graph.PutEntry(view, updated)
}

// CreateFile puts bytes into the pool and links a new file entry at
// path (spec.md §4.2 create-file).
func (t *Tree) CreateFile(view ViewID, ctx access.Context, p string, bytes []byte, owner uint32, perm uint16, now time.Time) (Delta, error) {
	parentID, parent, err := t.resolveParentDir(view, p)
	if err != nil {
		return Delta{}, err
	}
	if err := checkPermission(ctx, parent, PermOwnerWrite, PermOtherWrite); err != nil {
		return Delta{}, err
	}
	name := baseName(p)
	if _, err := t.childByName(view, parent, name); err == nil {
		return Delta{}, fmt.Errorf("%w: %s", apierr.ErrExists, p)
	}
	before := t.pool.Refcount(blobpool.Sum(bytes))
	hash := t.pool.Put(bytes)
	added := int64(0)
	if before == 0 {
		added = int64(len(bytes))
	}
	id := t.graph.NewEntryID()
	entry := &Entry{ID: id, Name: name, Kind: KindFile, Owner: owner, Perm: perm, CreatedAt: now, LinkCount: 1, BlobHash: hash}
	if err := t.graph.PutEntry(view, entry); err != nil {
		return Delta{}, err
	}
	if err := t.putChild(view, parentID, parent, id); err != nil {
		return Delta{}, err
	}
	return Delta{Bytes: added, Refs: 1}, nil
}

// Mkdir creates an empty directory entry at path.
func (t *Tree) Mkdir(view ViewID, ctx access.Context, p string, owner uint32, perm uint16, now time.Time) error {
	parentID, parent, err := t.resolveParentDir(view, p)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, parent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	name := baseName(p)
	if _, err := t.childByName(view, parent, name); err == nil {
		return fmt.Errorf("%w: %s", apierr.ErrExists, p)
	}
	id := t.graph.NewEntryID()
	entry := &Entry{ID: id, Name: name, Kind: KindDirectory, Owner: owner, Perm: perm, CreatedAt: now}
	if err := t.graph.PutEntry(view, entry); err != nil {
		return err
	}
	return t.putChild(view, parentID, parent, id)
}

// Append concatenates bytes onto path's current content and rebinds
// the entry to the new blob (spec.md §4.2 append). The previous blob
// remains live while any ancestor view still references it.
func (t *Tree) Append(view ViewID, ctx access.Context, p string, bytes []byte) (Delta, error) {
	return t.rebind(view, ctx, p, func(old []byte) []byte {
		out := make([]byte, 0, len(old)+len(bytes))
		out = append(out, old...)
		out = append(out, bytes...)
		return out
	})
}

// Overwrite rebinds path to new content (spec.md §4.2 overwrite):
// identical mechanism to create-file-or-rebind.
func (t *Tree) Overwrite(view ViewID, ctx access.Context, p string, bytes []byte) (Delta, error) {
	return t.rebind(view, ctx, p, func([]byte) []byte { return bytes })
}

func (t *Tree) rebind(view ViewID, ctx access.Context, p string, transform func([]byte) []byte) (Delta, error) {
	id, snap, err := t.Resolve(view, p)
	if err != nil {
		return Delta{}, err
	}
	if snap.Kind != KindFile && snap.Kind != KindHardlink {
		return Delta{}, fmt.Errorf("%w: %s is a directory", apierr.ErrIsADirectory, p)
	}
	if err := checkPermission(ctx, snap, PermOwnerWrite, PermOtherWrite); err != nil {
		return Delta{}, err
	}
	old, err := t.pool.Get(snap.BlobHash)
	if err != nil {
		return Delta{}, err
	}
	newBytes := transform(old)
	before := t.pool.Refcount(blobpool.Sum(newBytes))
	newHash := t.pool.Put(newBytes)
	added := int64(0)
	if before == 0 {
		added = int64(len(newBytes))
	}
	if err := t.pool.Release(snap.BlobHash); err != nil {
		return Delta{}, err
	}
	updated := snap.clone()
	updated.BlobHash = newHash
	if err := t.graph.PutEntry(view, updated); err != nil {
		return Delta{}, err
	}
	return Delta{Bytes: added, Refs: 0}, nil
}

// Hide masks path from lookup/list in the current view, preserving
// ancestors' views (spec.md §4.2 hide).
func (t *Tree) Hide(view ViewID, ctx access.Context, p string) error {
	id, _, err := t.resolveLexical(view, p)
	if err != nil {
		return err
	}
	_, parent, err := t.resolveParentDir(view, p)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, parent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	return t.graph.Hide(view, id)
}

// Move atomically renames src to dst within one view (spec.md §4.2
// move).
func (t *Tree) Move(view ViewID, ctx access.Context, src, dst string) error {
	id, snap, err := t.Resolve(view, src)
	if err != nil {
		return err
	}
	srcParentID, srcParent, err := t.resolveParentDir(view, src)
	if err != nil {
		return err
	}
	dstParentID, dstParent, err := t.resolveParentDir(view, dst)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, srcParent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	if err := checkPermission(ctx, dstParent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	newName := baseName(dst)
	if _, err := t.childByName(view, dstParent, newName); err == nil {
		return fmt.Errorf("%w: %s", apierr.ErrExists, dst)
	}

	renamed := snap.clone()
	renamed.Name = newName
	if err := t.graph.PutEntry(view, renamed); err != nil {
		return err
	}

	if srcParentID == dstParentID {
		return t.replaceChild(view, srcParentID, dstParent, id, id)
	}
	updatedSrc := srcParent.clone()
	idx := indexOfChildID(updatedSrc.Children, id)
	if idx < 0 {
		return fmt.Errorf("%w: child not found", apierr.ErrNotFound)
	}
	updatedSrc.Children = append(updatedSrc.Children[:idx], updatedSrc.Children[idx+1:]...)
	if err := t.graph.PutEntry(view, updatedSrc); err != nil {
		return err
	}
	return t.putChild(view, dstParentID, dstParent, id)
}

// Copy creates dst pointing at the same blob identity as src,
// increasing the pool refcount; no bytes are duplicated (spec.md §4.2
// copy).
func (t *Tree) Copy(view ViewID, ctx access.Context, src, dst string, now time.Time) error {
	_, srcSnap, err := t.Resolve(view, src)
	if err != nil {
		return err
	}
	if srcSnap.Kind != KindFile && srcSnap.Kind != KindHardlink {
		return fmt.Errorf("%w: %s is a directory", apierr.ErrIsADirectory, src)
	}
	dstParentID, dstParent, err := t.resolveParentDir(view, dst)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, dstParent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	name := baseName(dst)
	if _, err := t.childByName(view, dstParent, name); err == nil {
		return fmt.Errorf("%w: %s", apierr.ErrExists, dst)
	}
	if err := t.pool.Retain(srcSnap.BlobHash); err != nil {
		return err
	}
	id := t.graph.NewEntryID()
	entry := &Entry{ID: id, Name: name, Kind: KindFile, Owner: srcSnap.Owner, Perm: srcSnap.Perm, CreatedAt: now, LinkCount: 1, BlobHash: srcSnap.BlobHash}
	if err := t.graph.PutEntry(view, entry); err != nil {
		return err
	}
	return t.putChild(view, dstParentID, dstParent, id)
}

// Hardlink creates dst sharing src's blob identity; both entries' link
// count increments (spec.md §4.2 hardlink).
func (t *Tree) Hardlink(view ViewID, ctx access.Context, src, dst string, now time.Time) error {
	_, srcSnap, err := t.Resolve(view, src)
	if err != nil {
		return err
	}
	if srcSnap.Kind != KindFile && srcSnap.Kind != KindHardlink {
		return fmt.Errorf("%w: %s is a directory", apierr.ErrIsADirectory, src)
	}
	dstParentID, dstParent, err := t.resolveParentDir(view, dst)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, dstParent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	name := baseName(dst)
	if _, err := t.childByName(view, dstParent, name); err == nil {
		return fmt.Errorf("%w: %s", apierr.ErrExists, dst)
	}
	if err := t.pool.Retain(srcSnap.BlobHash); err != nil {
		return err
	}
	id := t.graph.NewEntryID()
	newLinkCount := srcSnap.LinkCount + 1
	entry := &Entry{ID: id, Name: name, Kind: KindHardlink, Owner: srcSnap.Owner, Perm: srcSnap.Perm, CreatedAt: now, LinkCount: newLinkCount, BlobHash: srcSnap.BlobHash}
	if err := t.graph.PutEntry(view, entry); err != nil {
		return err
	}
	if err := t.putChild(view, dstParentID, dstParent, id); err != nil {
		return err
	}
	updatedSrc := srcSnap.clone()
	updatedSrc.LinkCount = newLinkCount
	return t.graph.PutEntry(view, updatedSrc)
}

// Symlink stores target as a symlink entry at path; target is not
// resolved at creation time (spec.md §4.2 symlink).
func (t *Tree) Symlink(view ViewID, ctx access.Context, target, p string, owner uint32, now time.Time) error {
	parentID, parent, err := t.resolveParentDir(view, p)
	if err != nil {
		return err
	}
	if err := checkPermission(ctx, parent, PermOwnerWrite, PermOtherWrite); err != nil {
		return err
	}
	name := baseName(p)
	if _, err := t.childByName(view, parent, name); err == nil {
		return fmt.Errorf("%w: %s", apierr.ErrExists, p)
	}
	id := t.graph.NewEntryID()
	entry := &Entry{ID: id, Name: name, Kind: KindSymlink, Owner: owner, Perm: 0o777, CreatedAt: now, Target: target}
	if err := t.graph.PutEntry(view, entry); err != nil {
		return err
	}
	return t.putChild(view, parentID, parent, id)
}

// Readlink returns a symlink's stored target without resolving it.
func (t *Tree) Readlink(view ViewID, p string) (string, error) {
	_, snap, err := t.resolveLexical(view, p)
	if err != nil {
		return "", err
	}
	if snap.Kind != KindSymlink {
		return "", fmt.Errorf("%w: %s is not a symlink", apierr.ErrInvalidArgument, p)
	}
	return snap.Target, nil
}

// Chmod mutates permission bits on path's entry in the current view
// (spec.md §4.2 chmod).
func (t *Tree) Chmod(view ViewID, ctx access.Context, p string, perm uint16) error {
	_, snap, err := t.resolveLexical(view, p)
	if err != nil {
		return err
	}
	if !ctx.Privileged() && !ctx.IsOwner(snap.Owner) {
		return fmt.Errorf("%w: %s", apierr.ErrPermDenied, p)
	}
	updated := snap.clone()
	updated.Perm = perm
	return t.graph.PutEntry(view, updated)
}

// Chown mutates owner on path's entry in the current view (spec.md
// §4.2 chown).
func (t *Tree) Chown(view ViewID, ctx access.Context, p string, owner uint32) error {
	_, snap, err := t.resolveLexical(view, p)
	if err != nil {
		return err
	}
	if !ctx.Privileged() && !ctx.IsOwner(snap.Owner) {
		return fmt.Errorf("%w: %s", apierr.ErrPermDenied, p)
	}
	updated := snap.clone()
	updated.Owner = owner
	return t.graph.PutEntry(view, updated)
}
