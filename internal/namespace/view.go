package namespace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ghartrid/voltree/internal/apierr"
)

// ViewID is a monotonically increasing view identity (spec.md §3.3).
type ViewID uint64

// NoParent marks the root view, which has no parent.
const NoParent ViewID = ^ViewID(0)

// ChangeSet is the set of entry additions, modifications, and hides a
// view layers over its parent (spec.md §3.3 Glossary: "Change-set").
type ChangeSet struct {
	// Entries holds, for every EntryID touched in this view, the
	// snapshot as of this view. An id present here shadows whatever
	// an ancestor view recorded for the same id.
	Entries map[EntryID]*Entry

	// Hidden marks ids that are masked from lookup/list in this view
	// and every descendant, without removing the underlying blob
	// reference (spec.md §3.2(d)).
	Hidden map[EntryID]bool
}

func newChangeSet() *ChangeSet {
	return &ChangeSet{Entries: make(map[EntryID]*Entry), Hidden: make(map[EntryID]bool)}
}

// View is an immutable snapshot identity (spec.md §3.3). Once
// published (Frozen), a View's ChangeSet is never modified again;
// only the current working head may grow. The graph is a DAG, not a
// tree (spec.md §3.3(b)): an ordinary fork or snapshot records one
// parent, but a merge view records two, Parent being the prior
// current head and Parent2 the merged-in source head (spec.md §4.4
// "the merge produces a new head view whose parents include both").
type View struct {
	ID         ViewID
	Parent     ViewID
	HasParent  bool
	Parent2    ViewID
	HasParent2 bool
	Label      string
	CreatedAt  time.Time
	Change     *ChangeSet
	Frozen     bool
}

// Graph is the arena-backed DAG of views plus the flat entry store
// they share (spec.md §4.3). A zero Graph is not usable; create one
// with NewGraph.
type Graph struct {
	views  map[ViewID]*View
	order  []ViewID // creation order, for stable iteration (view-list)
	nextID ViewID
	nextEntryID EntryID
}

// NewGraph creates a Graph containing only the root view (id 0), with
// an empty root directory entry (RootID, kind directory, no children,
// owner 0, mode 0o777 so any context may create top-level entries).
func NewGraph(now time.Time) *Graph {
	g := &Graph{views: make(map[ViewID]*View), nextEntryID: RootID + 1}
	root := &View{ID: 0, HasParent: false, Label: "root", CreatedAt: now, Change: newChangeSet()}
	root.Change.Entries[RootID] = &Entry{
		ID: RootID, Name: "/", Kind: KindDirectory, Perm: 0o777, CreatedAt: now,
	}
	g.views[0] = root
	g.order = append(g.order, 0)
	g.nextID = 1
	return g
}

// Restore rebuilds a Graph from a previously serialised view set,
// preserving view ids, instead of allocating a fresh root (used by
// the Serialiser's Load path).
func Restore(views []*View, nextEntryID EntryID) *Graph {
	g := &Graph{views: make(map[ViewID]*View), nextEntryID: nextEntryID}
	var maxID ViewID
	for _, v := range views {
		g.views[v.ID] = v
		g.order = append(g.order, v.ID)
		if v.ID >= maxID {
			maxID = v.ID
		}
	}
	g.nextID = maxID + 1
	return g
}

// Get returns the view record for id.
func (g *Graph) Get(id ViewID) (*View, error) {
	v, ok := g.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: view %d", apierr.ErrNotFound, id)
	}
	return v, nil
}

// List returns every view id in creation order (view-list, spec.md
// §6.1).
func (g *Graph) List() []ViewID {
	out := make([]ViewID, len(g.order))
	copy(out, g.order)
	return out
}

// NewEntryID allocates the next identity in the flat entry arena.
func (g *Graph) NewEntryID() EntryID {
	id := g.nextEntryID
	g.nextEntryID++
	return id
}

// NextEntryID returns the identity NewEntryID would allocate next,
// without allocating it, for the Serialiser's Save path.
func (g *Graph) NextEntryID() EntryID {
	return g.nextEntryID
}

// Views returns every view record in creation order, for the
// Serialiser's Save path.
func (g *Graph) Views() []*View {
	out := make([]*View, len(g.order))
	for i, id := range g.order {
		out[i] = g.views[id]
	}
	return out
}

// Fork creates a new, unfrozen view whose parent is parent. It does
// not freeze parent: callers that want the "snapshot" semantics of
// spec.md §4.3 (freeze-then-fork) call Snapshot instead. Branch-create
// does not call Fork: a new branch starts with base and head both set
// to the current head view, and the first write on a shared head is
// what forks a fresh view for it.
func (g *Graph) Fork(parent ViewID, label string, now time.Time) (ViewID, error) {
	if _, err := g.Get(parent); err != nil {
		return 0, err
	}
	id := g.nextID
	g.nextID++
	g.views[id] = &View{ID: id, Parent: parent, HasParent: true, Label: label, CreatedAt: now, Change: newChangeSet()}
	g.order = append(g.order, id)
	return id, nil
}

// ForkMerge creates a new, unfrozen view with two parents: parent1 (the
// prior current head) and parent2 (the merged-in source head), the way
// branch.Merge records a merge result as a DAG node rather than a
// single-parent fork (spec.md §4.4, §3.3(b)). Neither parent is frozen.
func (g *Graph) ForkMerge(parent1, parent2 ViewID, label string, now time.Time) (ViewID, error) {
	if _, err := g.Get(parent1); err != nil {
		return 0, err
	}
	if _, err := g.Get(parent2); err != nil {
		return 0, err
	}
	id := g.nextID
	g.nextID++
	g.views[id] = &View{
		ID: id, Parent: parent1, HasParent: true, Parent2: parent2, HasParent2: true,
		Label: label, CreatedAt: now, Change: newChangeSet(),
	}
	g.order = append(g.order, id)
	return id, nil
}

// Snapshot freezes head and returns a new head view descending from
// it (spec.md §4.3 snapshot(label)).
func (g *Graph) Snapshot(head ViewID, label string, now time.Time) (ViewID, error) {
	v, err := g.Get(head)
	if err != nil {
		return 0, err
	}
	v.Frozen = true
	return g.Fork(head, label, now)
}

// EnsureWritable returns an error if view is frozen: only the working
// head may grow (spec.md §3.3 invariant (a)).
func (g *Graph) EnsureWritable(view ViewID) (*View, error) {
	v, err := g.Get(view)
	if err != nil {
		return nil, err
	}
	if v.Frozen {
		return nil, fmt.Errorf("%w: view %d is frozen", apierr.ErrInvalidArgument, view)
	}
	return v, nil
}

// PutEntry records snap as view's own attribute snapshot for
// snap.ID, shadowing any ancestor's snapshot for the same id.
func (g *Graph) PutEntry(view ViewID, snap *Entry) error {
	v, err := g.EnsureWritable(view)
	if err != nil {
		return err
	}
	v.Change.Entries[snap.ID] = snap
	return nil
}

// Hide marks id hidden as of view (and every descendant), preserving
// ancestors' views (spec.md §4.2 hide(path)).
func (g *Graph) Hide(view ViewID, id EntryID) error {
	v, err := g.EnsureWritable(view)
	if err != nil {
		return err
	}
	snap, _, found := g.Lookup(view, id)
	if !found {
		return fmt.Errorf("%w: entry %d", apierr.ErrNotFound, id)
	}
	hidden := snap.clone()
	hidden.Hidden = true
	v.Change.Entries[id] = hidden
	v.Change.Hidden[id] = true
	return nil
}

// Lookup walks the change-set chain from view toward the root,
// returning the first (closest) snapshot recorded for id and whether
// it is visible (not hidden) as of view.
func (g *Graph) Lookup(view ViewID, id EntryID) (snap *Entry, visible bool, found bool) {
	cur := view
	for {
		v, ok := g.views[cur]
		if !ok {
			return nil, false, false
		}
		if e, ok := v.Change.Entries[id]; ok {
			return e, !v.Change.Hidden[id], true
		}
		if !v.HasParent {
			return nil, false, false
		}
		cur = v.Parent
	}
}

// ancestors returns the full set of view ids reachable from view by
// walking Parent and, for merge views, Parent2, inclusive of view
// itself. The graph is a DAG (spec.md §3.3(b)), so this is a closure
// over both parent edges rather than a single chain.
func (g *Graph) ancestors(view ViewID) map[ViewID]bool {
	out := map[ViewID]bool{}
	stack := []ViewID{view}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[cur] {
			continue
		}
		out[cur] = true
		v, ok := g.views[cur]
		if !ok {
			continue
		}
		if v.HasParent {
			stack = append(stack, v.Parent)
		}
		if v.HasParent2 {
			stack = append(stack, v.Parent2)
		}
	}
	return out
}

// IsAncestor reports whether base is view itself or one of its
// ancestors.
func (g *Graph) IsAncestor(base, view ViewID) bool {
	return g.ancestors(view)[base]
}

// ChangeKind closes the set of diff classifications (spec.md §4.3
// diff).
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeHidden
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// DiffEntry is one row of a view-diff/branch-diff stream.
type DiffEntry struct {
	Path string
	Kind ChangeKind
}

// Diff emits the set of paths that changed between two views,
// depth-first in lexicographic path order (spec.md §4.3 diff).
// "Changed" means: touched by the change-set of any view after the
// ancestor (the older of the two, assumed an ancestor of the other),
// up to and including the descendant itself. If neither view is an ancestor of the other,
// Diff compares their full visible trees instead (used for branch
// diffs across unrelated history).
func (g *Graph) Diff(a, b ViewID) ([]DiffEntry, error) {
	if _, err := g.Get(a); err != nil {
		return nil, err
	}
	if _, err := g.Get(b); err != nil {
		return nil, err
	}

	touched := map[EntryID]bool{}
	if g.IsAncestor(a, b) {
		// b may reach a via either parent edge once merge views are in
		// play, so collect every view after a, up to and including b,
		// as the set difference of their ancestor closures rather than
		// walking a single chain.
		ancestorsOfA := g.ancestors(a)
		for cur := range g.ancestors(b) {
			if cur == a || ancestorsOfA[cur] {
				continue
			}
			v := g.views[cur]
			for id := range v.Change.Entries {
				touched[id] = true
			}
		}
	} else {
		treeA := g.visiblePaths(a)
		treeB := g.visiblePaths(b)
		for id := range treeA {
			touched[id] = true
		}
		for id := range treeB {
			touched[id] = true
		}
	}

	var out []DiffEntry
	for id := range touched {
		snapB, visB, foundB := g.Lookup(b, id)
		if !foundB {
			continue
		}
		path := g.pathOf(b, id)
		if path == "" {
			continue
		}
		if !visB {
			out = append(out, DiffEntry{Path: path, Kind: ChangeHidden})
			continue
		}
		if !g.hadSnapshotAt(a, id) {
			out = append(out, DiffEntry{Path: path, Kind: ChangeAdded})
			continue
		}
		_ = snapB
		out = append(out, DiffEntry{Path: path, Kind: ChangeModified})
	}

	sort.Slice(out, func(i, j int) bool {
		pi := strings.Split(out[i].Path, "/")
		pj := strings.Split(out[j].Path, "/")
		for k := 0; k < len(pi) && k < len(pj); k++ {
			if pi[k] != pj[k] {
				return pi[k] < pj[k]
			}
		}
		return len(pi) < len(pj)
	})
	return out, nil
}

func (g *Graph) hadSnapshotAt(view ViewID, id EntryID) bool {
	_, _, found := g.Lookup(view, id)
	return found
}

// visiblePaths returns every EntryID reachable from the root in view,
// keyed by id, for use by Diff. A hidden entry's own path is included
// (Diff needs it to report a ("path", hidden) row), but a hidden
// directory's children are not walked into: hide masks a subtree from
// lookup/list, so whatever it once contained is no longer reachable
// through it.
func (g *Graph) visiblePaths(view ViewID) map[EntryID]string {
	out := map[EntryID]string{}
	var walk func(id EntryID, prefix string)
	walk = func(id EntryID, prefix string) {
		snap, vis, found := g.Lookup(view, id)
		if !found {
			return
		}
		path := prefix
		if id != RootID {
			if prefix == "/" {
				path = "/" + snap.Name
			} else {
				path = prefix + "/" + snap.Name
			}
		} else {
			path = "/"
		}
		out[id] = path
		if !vis {
			return
		}
		if snap.Kind == KindDirectory {
			for _, c := range snap.Children {
				walk(c, path)
			}
		}
	}
	walk(RootID, "/")
	return out
}

// pathOf returns id's path in view (whether or not it is currently
// visible there), or "" if id is not reachable from the root at all.
func (g *Graph) pathOf(view ViewID, id EntryID) string {
	return g.visiblePaths(view)[id]
}
