// Package branch implements the Engine's Branch Registry: named,
// movable pointers into the view graph, and the three-way merge
// operation between them (spec.md §4.4). It is grounded on the
// lowest-common-ancestor matching and conflict-reporting shape of
// internal/merge's JSONL issue merger, adapted from per-issue keys to
// per-EntryID namespace identities.
package branch

import (
	"fmt"
	"path"
	"time"

	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/namespace"
)

// BranchID is a stable identity for a branch, independent of its
// (renamable) name.
type BranchID uint64

// Branch is one named pointer into the view graph (spec.md §3.4).
type Branch struct {
	ID        BranchID
	Name      string
	BaseView  namespace.ViewID
	HeadView  namespace.ViewID
	CreatedAt time.Time
}

// Registry tracks every branch and which one is current (spec.md
// §4.4). A zero Registry is not usable; create one with NewRegistry.
type Registry struct {
	graph    *namespace.Graph
	branches map[BranchID]*Branch
	byName   map[string]BranchID
	order    []BranchID
	nextID   BranchID
	current  BranchID
}

// NewRegistry creates a Registry whose sole branch, "main", starts at
// graph's root view.
func NewRegistry(graph *namespace.Graph, now time.Time) *Registry {
	r := &Registry{
		graph:    graph,
		branches: make(map[BranchID]*Branch),
		byName:   make(map[string]BranchID),
	}
	main := &Branch{ID: 0, Name: "main", BaseView: 0, HeadView: 0, CreatedAt: now}
	r.branches[0] = main
	r.byName["main"] = 0
	r.order = append(r.order, 0)
	r.nextID = 1
	r.current = 0
	return r
}

// Restore rebuilds a Registry from a previously serialised branch
// list and current-branch id (used by the Serialiser's Load path).
func Restore(graph *namespace.Graph, branches []*Branch, current BranchID) *Registry {
	r := &Registry{
		graph:    graph,
		branches: make(map[BranchID]*Branch, len(branches)),
		byName:   make(map[string]BranchID, len(branches)),
	}
	var maxID BranchID
	for _, b := range branches {
		r.branches[b.ID] = b
		r.byName[b.Name] = b.ID
		r.order = append(r.order, b.ID)
		if b.ID >= maxID {
			maxID = b.ID
		}
	}
	r.nextID = maxID + 1
	r.current = current
	return r
}

// Current returns the branch the cursor currently points at.
func (r *Registry) Current() *Branch {
	return r.branches[r.current]
}

// Get returns the branch named name.
func (r *Registry) Get(name string) (*Branch, error) {
	id, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: branch %q", apierr.ErrNotFound, name)
	}
	return r.branches[id], nil
}

// List returns every branch in creation order.
func (r *Registry) List() []*Branch {
	out := make([]*Branch, len(r.order))
	for i, id := range r.order {
		out[i] = r.branches[id]
	}
	return out
}

// Create creates a branch whose base and head are both the current
// branch's head view (spec.md §4.4 create(name)).
func (r *Registry) Create(name string, now time.Time) (*Branch, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty branch name", apierr.ErrInvalidArgument)
	}
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("%w: branch %q", apierr.ErrExists, name)
	}
	head := r.Current().HeadView
	id := r.nextID
	r.nextID++
	b := &Branch{ID: id, Name: name, BaseView: head, HeadView: head, CreatedAt: now}
	r.branches[id] = b
	r.byName[name] = id
	r.order = append(r.order, id)
	return b, nil
}

// SwitchByName sets the current branch cursor (spec.md §4.4
// switch-by-name(name)).
func (r *Registry) SwitchByName(name string) error {
	id, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: branch %q", apierr.ErrNotFound, name)
	}
	r.current = id
	return nil
}

// AdvanceHead repoints branch's head at view, used by the Operations
// API after a mutation forks a new head off the old one.
func (r *Registry) AdvanceHead(b *Branch, view namespace.ViewID) {
	b.HeadView = view
}

// lowestCommonAncestor returns the most recent view that is an
// ancestor of both a and b. Since Merge produces views with two
// parents, the view graph is a DAG rather than a single chain
// (spec.md §3.3(b)), so each side's reachable ancestor set is computed
// as a full closure over both parent edges, not a linear walk. Among
// the intersection, the common ancestor with the highest ViewID is
// picked: view ids are allocated monotonically as Fork/Snapshot/
// ForkMerge run, so the highest id in the intersection is the most
// recent point both sides share. The root view (0) is always a common
// ancestor, so this never fails for two views in the same graph.
func lowestCommonAncestor(g *namespace.Graph, a, b namespace.ViewID) namespace.ViewID {
	ancestorsOf := func(v namespace.ViewID) map[namespace.ViewID]bool {
		out := map[namespace.ViewID]bool{}
		stack := []namespace.ViewID{v}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if out[cur] {
				continue
			}
			out[cur] = true
			view, err := g.Get(cur)
			if err != nil {
				continue
			}
			if view.HasParent {
				stack = append(stack, view.Parent)
			}
			if view.HasParent2 {
				stack = append(stack, view.Parent2)
			}
		}
		return out
	}
	aSet := ancestorsOf(a)
	bSet := ancestorsOf(b)
	best := namespace.ViewID(0)
	found := false
	for v := range aSet {
		if bSet[v] && (!found || v > best) {
			best = v
			found = true
		}
	}
	return best
}

// Merge performs a three-way merge of source's head onto current's
// head (spec.md §4.4 merge(source_branch, label)). It returns the new
// head view id and the list of paths left in conflict.
func Merge(g *namespace.Graph, current, source *Branch, label string, now time.Time) (namespace.ViewID, []string, error) {
	base := lowestCommonAncestor(g, current.HeadView, source.HeadView)

	baseDiff, err := g.Diff(base, current.HeadView)
	if err != nil {
		return 0, nil, err
	}
	sourceDiff, err := g.Diff(base, source.HeadView)
	if err != nil {
		return 0, nil, err
	}

	currentChanged := map[string]namespace.ChangeKind{}
	for _, d := range baseDiff {
		currentChanged[d.Path] = d.Kind
	}
	sourceChanged := map[string]namespace.ChangeKind{}
	for _, d := range sourceDiff {
		sourceChanged[d.Path] = d.Kind
	}

	newHead, err := g.ForkMerge(current.HeadView, source.HeadView, label, now)
	if err != nil {
		return 0, nil, err
	}

	var conflicts []string
	for p, sourceKind := range sourceChanged {
		currentKind, touchedByCurrent := currentChanged[p]

		if sourceKind != namespace.ChangeHidden && (!touchedByCurrent || currentKind != namespace.ChangeHidden) {
			if kind, ok := entryKindAt(g, source.HeadView, p); ok && kind == namespace.KindDirectory {
				// A directory's "modification" is a change to its
				// child list, not a blob identity: union rather than
				// diff-by-hash so concurrent additions under the same
				// directory from both sides both survive.
				if err := unionDirectory(g, newHead, source.HeadView, p); err != nil {
					return 0, nil, err
				}
				continue
			}
		}

		if !touchedByCurrent {
			// Clean pickup from source: non-conflicting addition or
			// modification, or a hide with nothing to contend with.
			if err := layerFromSource(g, newHead, source.HeadView, p, sourceKind); err != nil {
				return 0, nil, err
			}
			continue
		}

		if sourceKind == namespace.ChangeHidden || currentKind == namespace.ChangeHidden {
			// Hide wins over modify on either side (spec.md §4.4):
			// whichever side hid the path, the hide is preserved.
			if sourceKind == namespace.ChangeHidden {
				if err := layerFromSource(g, newHead, source.HeadView, p, sourceKind); err != nil {
					return 0, nil, err
				}
			}
			// If only current hid it, current's state (already the
			// parent of newHead) needs no action.
			continue
		}

		// Both sides touched the same path with non-hide changes: a
		// conflict only if they disagree on the resulting blob
		// identity; otherwise the convergent value needs no merge.
		same, err := identicalAt(g, current.HeadView, source.HeadView, p)
		if err != nil {
			return 0, nil, err
		}
		if same {
			continue
		}
		conflicts = append(conflicts, p)
	}

	return newHead, conflicts, nil
}

// entryKindAt resolves p's entry kind as of view.
func entryKindAt(g *namespace.Graph, view namespace.ViewID, p string) (namespace.Kind, bool) {
	id, ok := pathToID(g, view, p)
	if !ok {
		return 0, false
	}
	snap, visible, found := g.Lookup(view, id)
	if !found || !visible {
		return 0, false
	}
	return snap.Kind, true
}

// unionDirectory merges p's child list from sourceView into newHead's
// inherited snapshot (from current's history), adding any child
// present in source but missing from current's side. Children already
// present keep current's order and identity.
func unionDirectory(g *namespace.Graph, newHead, sourceView namespace.ViewID, p string) error {
	srcID, ok := pathToID(g, sourceView, p)
	if !ok {
		return fmt.Errorf("%w: %s", apierr.ErrNotFound, p)
	}
	srcSnap, _, found := g.Lookup(sourceView, srcID)
	if !found {
		return fmt.Errorf("%w: %s", apierr.ErrNotFound, p)
	}

	curID, ok := pathToID(g, newHead, p)
	if !ok {
		// Current never had this directory at all (fully new subtree
		// from source); just adopt source's snapshot wholesale.
		return g.PutEntry(newHead, srcSnap)
	}
	curSnap, _, found := g.Lookup(newHead, curID)
	if !found {
		return g.PutEntry(newHead, srcSnap)
	}

	have := map[namespace.EntryID]bool{}
	merged := *curSnap
	merged.Children = append([]namespace.EntryID{}, curSnap.Children...)
	for _, c := range merged.Children {
		have[c] = true
	}
	for _, c := range srcSnap.Children {
		if !have[c] {
			merged.Children = append(merged.Children, c)
			have[c] = true
		}
	}
	return g.PutEntry(newHead, &merged)
}

// layerFromSource copies the snapshot recorded for p as of sourceView
// onto newHead, including a hide. For a path sourceKind marks as
// freshly added, it also splices the child into its parent
// directory's listing on newHead, since newHead's parent chain
// (current's history) never linked it.
func layerFromSource(g *namespace.Graph, newHead, sourceView namespace.ViewID, p string, sourceKind namespace.ChangeKind) error {
	id, snap, hidden, err := resolveForMerge(g, sourceView, p)
	if err != nil {
		return err
	}
	if hidden {
		return g.Hide(newHead, id)
	}
	if err := g.PutEntry(newHead, snap); err != nil {
		return err
	}
	if sourceKind == namespace.ChangeAdded {
		return linkChild(g, newHead, path.Dir(p), id)
	}
	return nil
}

// linkChild appends childID to parentPath's directory entry on
// newHead, if not already present.
func linkChild(g *namespace.Graph, newHead namespace.ViewID, parentPath string, childID namespace.EntryID) error {
	parentID, ok := pathToID(g, newHead, parentPath)
	if !ok {
		return fmt.Errorf("%w: %s", apierr.ErrNotFound, parentPath)
	}
	parent, _, found := g.Lookup(newHead, parentID)
	if !found {
		return fmt.Errorf("%w: %s", apierr.ErrNotFound, parentPath)
	}
	for _, c := range parent.Children {
		if c == childID {
			return nil
		}
	}
	updated := *parent
	updated.Children = append(append([]namespace.EntryID{}, parent.Children...), childID)
	return g.PutEntry(newHead, &updated)
}

// identicalAt reports whether path resolves to the same blob identity
// (by EntryID and content hash) in both views.
func identicalAt(g *namespace.Graph, a, b namespace.ViewID, path string) (bool, error) {
	idA, snapA, hiddenA, errA := resolveForMerge(g, a, path)
	idB, snapB, hiddenB, errB := resolveForMerge(g, b, path)
	if errA != nil || errB != nil {
		return false, nil
	}
	if hiddenA != hiddenB {
		return false, nil
	}
	if idA != idB {
		return false, nil
	}
	return snapA.BlobHash == snapB.BlobHash && snapA.Name == snapB.Name, nil
}

// resolveForMerge finds the EntryID whose visible path in view equals
// path, by walking the visible tree (Diff's addressing is by path,
// namespace.Graph's by id).
func resolveForMerge(g *namespace.Graph, view namespace.ViewID, path string) (namespace.EntryID, *namespace.Entry, bool, error) {
	id, ok := pathToID(g, view, path)
	if !ok {
		return 0, nil, false, fmt.Errorf("%w: %s", apierr.ErrNotFound, path)
	}
	snap, visible, found := g.Lookup(view, id)
	if !found {
		return 0, nil, false, fmt.Errorf("%w: %s", apierr.ErrNotFound, path)
	}
	return id, snap, !visible, nil
}

func pathToID(g *namespace.Graph, view namespace.ViewID, path string) (namespace.EntryID, bool) {
	var found namespace.EntryID
	ok := false
	var walk func(id namespace.EntryID, prefix string)
	walk = func(id namespace.EntryID, prefix string) {
		if ok {
			return
		}
		snap, _, present := g.Lookup(view, id)
		if !present {
			return
		}
		cur := prefix
		if id != namespace.RootID {
			if prefix == "/" {
				cur = "/" + snap.Name
			} else {
				cur = prefix + "/" + snap.Name
			}
		} else {
			cur = "/"
		}
		if cur == path {
			found = id
			ok = true
			return
		}
		if snap.Kind == namespace.KindDirectory {
			for _, c := range snap.Children {
				walk(c, cur)
				if ok {
					return
				}
			}
		}
	}
	walk(namespace.RootID, "/")
	return found, ok
}
