// Package ops implements the Operations API: the sole entry point
// external callers use, mapping every call to a policy kind, consulting
// the Policy Engine and Quota Accountant, and only then mutating the
// Namespace Tree (spec.md §4.8). It is grounded on the shape of the
// teacher's top-level internal/beads package: one façade type wiring
// together every lower-level package, with each public method a thin
// policy-check-then-delegate wrapper.
package ops

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/blobpool"
	"github.com/ghartrid/voltree/internal/branch"
	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
	"github.com/ghartrid/voltree/internal/serial"
)

// Facade is the Operations API (spec.md §4.8). A zero Facade is not
// usable; create one with New or Load.
type Facade struct {
	pool     *blobpool.Pool
	graph    *namespace.Graph
	tree     *namespace.Tree
	branches *branch.Registry
	quota    *quota.Accountant
	policy   *policy.Engine
	ctx      access.Context

	// cursor is the view view-switch last pointed read operations at;
	// it defaults to the current branch's head and is reset to it on
	// every branch-switch. Mutations always target the current
	// branch's head view directly (spec.md §5: "only the working head
	// may grow"), never the cursor, so a read-only cursor excursion
	// can never surprise a concurrent writer.
	cursor namespace.ViewID
}

// New creates a Facade over a fresh, empty volume.
func New(volumeLimits quota.Limits, policyCfg policy.Config, now time.Time) *Facade {
	graph := namespace.NewGraph(now)
	pool := blobpool.New()
	return &Facade{
		pool:     pool,
		graph:    graph,
		tree:     namespace.NewTree(graph, pool),
		branches: branch.NewRegistry(graph, now),
		quota:    quota.New(volumeLimits),
		policy:   policy.New(policyCfg),
		ctx:      access.Default(),
		cursor:   0,
	}
}

// Load reconstructs a Facade from a previously saved volume (spec.md
// §6.1 "volume-load(device, sector) → engine").
func Load(dev serial.Device) (*Facade, error) {
	state, err := serial.Load(dev)
	if err != nil {
		return nil, err
	}
	f := &Facade{
		pool:     state.Pool,
		graph:    state.Graph,
		tree:     namespace.NewTree(state.Graph, state.Pool),
		branches: state.Branch,
		quota:    state.Quota,
		policy:   state.Policy,
		ctx:      access.Default(),
	}
	f.cursor = f.branches.Current().HeadView
	return f, nil
}

// VolumeSave persists the Facade's full state to dev (spec.md §6.1
// "volume-save(device, sector)").
func (f *Facade) VolumeSave(dev serial.Device) error {
	return serial.Save(dev, &serial.State{Pool: f.pool, Graph: f.graph, Branch: f.branches, Quota: f.quota, Policy: f.policy})
}

// SetContext installs ctx as the process-wide access context (spec.md
// §6.1 "set-context(uid, gid, caps)").
func (f *Facade) SetContext(ctx access.Context) { f.ctx = ctx }

// GetContext returns the current access context (spec.md §6.1
// "get-context").
func (f *Facade) GetContext() access.Context { return f.ctx }

// head returns the writable view every mutation targets: the current
// branch's head.
func (f *Facade) head() namespace.ViewID { return f.branches.Current().HeadView }

// writableHead returns the view a mutation should land in, forking a
// fresh child view first if the current branch's head is shared
// (spec.md §3.3: a view is created "by the first write on an
// unbranched head"). BaseView never moves once a branch is created or
// merged into, so the head is shared when HeadView == BaseView (true
// for "main" before its first write and for any branch-create result
// before its first write) or when another branch was created on top
// of it and uses it as its BaseView. Writing into a shared head in
// place would change the other branch's history too. Once forked, the
// branch's head (and the read cursor, mirroring Snapshot/BranchSwitch/
// BranchMerge) moves to the new view, so later mutations in the same
// branch target it directly until another branch is created on it.
func (f *Facade) writableHead(now time.Time) (namespace.ViewID, error) {
	b := f.branches.Current()
	shared := b.HeadView == b.BaseView
	for _, other := range f.branches.List() {
		if other.ID != b.ID && other.BaseView == b.HeadView {
			shared = true
		}
	}
	if !shared {
		return b.HeadView, nil
	}
	newHead, err := f.graph.Fork(b.HeadView, "", now)
	if err != nil {
		return 0, err
	}
	f.branches.AdvanceHead(b, newHead)
	f.cursor = newHead
	return newHead, nil
}

// readView returns the view read-only calls resolve against: the
// cursor view-switch last set, defaulting to and tracking the current
// branch's head until view-switch or a branch change moves it.
func (f *Facade) readView() namespace.ViewID { return f.cursor }

// --- Files & directories ---

// List lists p's children in the current view (spec.md §6.1 "list").
func (f *Facade) List(p string) ([]namespace.DirEntry, error) {
	return f.tree.List(f.readView(), p)
}

// Stat returns p's attributes (spec.md §6.1 "stat").
func (f *Facade) Stat(p string) (namespace.Stat, error) {
	return f.tree.Stat(f.readView(), p)
}

// Read returns p's byte content (spec.md §6.1 "read").
func (f *Facade) Read(p string) ([]byte, error) {
	return f.tree.Read(f.readView(), p)
}

// Write creates p with data, or replaces its content if it already
// exists (spec.md §6.1 "write"). A fresh file is an fs-overwrite of
// nothing, audited; an existing file's replacement is a full
// fs-overwrite. The quota check runs against the predicted delta
// before the tree is touched, so a quota-exceeded verdict leaves the
// pool and namespace exactly as they were (spec.md §4.6 "rolled back
// before any visible state changes").
func (f *Facade) Write(p string, data []byte, owner uint32, perm uint16, now time.Time) error {
	if _, err := f.policy.Check(policy.FSOverwrite, f.ctx, p, "", "write", now); err != nil {
		return err
	}
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	if _, _, err := f.tree.Resolve(head, p); err == nil {
		if err := f.applyQuota(namespace.Delta{Bytes: f.predictNewBlobBytes(data)}); err != nil {
			return err
		}
		_, err := f.tree.Overwrite(head, f.ctx, p, data)
		return err
	}
	if err := f.applyQuota(namespace.Delta{Bytes: f.predictNewBlobBytes(data), Refs: 1}); err != nil {
		return err
	}
	_, err = f.tree.CreateFile(head, f.ctx, p, data, owner, perm, now)
	return err
}

// Append grows p's content (spec.md §6.1 "append"), checking quota
// against the predicted post-append blob before the tree is touched.
func (f *Facade) Append(p string, data []byte, now time.Time) error {
	if _, err := f.policy.Check(policy.FSOverwrite, f.ctx, p, "", "append", now); err != nil {
		return err
	}
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	old, err := f.tree.Read(head, p)
	if err != nil {
		return err
	}
	grown := make([]byte, 0, len(old)+len(data))
	grown = append(grown, old...)
	grown = append(grown, data...)
	if err := f.applyQuota(namespace.Delta{Bytes: f.predictNewBlobBytes(grown)}); err != nil {
		return err
	}
	_, err = f.tree.Append(head, f.ctx, p, data)
	return err
}

// predictNewBlobBytes returns the byte delta a blob of data would add
// to the pool: its full length if no entry currently holds it, zero
// if an existing blob is simply being referenced again.
func (f *Facade) predictNewBlobBytes(data []byte) int64 {
	if f.pool.Refcount(blobpool.Sum(data)) == 0 {
		return int64(len(data))
	}
	return 0
}

// Mkdir creates a new directory (spec.md §6.1 "mkdir").
func (f *Facade) Mkdir(p string, owner uint32, perm uint16, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Mkdir(head, f.ctx, p, owner, perm, now)
}

// Hide removes p from visibility without reclaiming its blob
// (spec.md §6.1 "hide"; spec.md §1 Non-goals: "a successful delete
// request is transformed into a hide operation"). fs-delete always
// classifies Transform, so Hide never itself returns denied-by-policy;
// a caller that wants "delete" semantics calls Hide, matching the
// façade's role of routing transform verdicts (step iv of spec.md
// §4.8).
func (f *Facade) Hide(p string, now time.Time) error {
	if _, err := f.policy.Check(policy.FSDelete, f.ctx, p, "", "hide", now); err != nil {
		return err
	}
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Hide(head, f.ctx, p)
}

// Move renames or relocates an entry (spec.md §6.1 "move").
func (f *Facade) Move(src, dst string, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Move(head, f.ctx, src, dst)
}

// Copy duplicates an entry, sharing its blob (spec.md §6.1 "copy").
func (f *Facade) Copy(src, dst string, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	if err := f.applyQuota(namespace.Delta{Refs: 1}); err != nil {
		return err
	}
	return f.tree.Copy(head, f.ctx, src, dst, now)
}

// Hardlink creates a second name for the same blob identity (spec.md
// §6.1 "hardlink").
func (f *Facade) Hardlink(src, dst string, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	if err := f.applyQuota(namespace.Delta{Refs: 1}); err != nil {
		return err
	}
	return f.tree.Hardlink(head, f.ctx, src, dst, now)
}

// Symlink creates a symbolic link whose target is stored verbatim
// (spec.md §6.1 "symlink").
func (f *Facade) Symlink(target, p string, owner uint32, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Symlink(head, f.ctx, target, p, owner, now)
}

// Readlink returns a symlink's stored target (spec.md §6.1
// "readlink").
func (f *Facade) Readlink(p string) (string, error) {
	return f.tree.Readlink(f.readView(), p)
}

// Chmod changes p's permission bits (spec.md §6.1 "chmod").
func (f *Facade) Chmod(p string, perm uint16, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Chmod(head, f.ctx, p, perm)
}

// Chown changes p's owner (spec.md §6.1 "chown").
func (f *Facade) Chown(p string, owner uint32, now time.Time) error {
	head, err := f.writableHead(now)
	if err != nil {
		return err
	}
	return f.tree.Chown(head, f.ctx, p, owner)
}

// Find walks the current view depth-first and returns every visible
// path whose base name matches namePattern, a path.Match glob
// (spec.md §6.1 "find(name_pattern)").
func (f *Facade) Find(namePattern string) ([]string, error) {
	var out []string
	err := f.walk("/", func(p string, _ namespace.Stat) error {
		ok, err := path.Match(namePattern, path.Base(p))
		if err != nil {
			return fmt.Errorf("%w: %v", apierr.ErrInvalidArgument, err)
		}
		if ok {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Grep walks the current view and returns every visible file path
// whose content contains textPattern as a substring (spec.md §6.1
// "grep(text_pattern)").
func (f *Facade) Grep(textPattern string) ([]string, error) {
	var out []string
	err := f.walk("/", func(p string, st namespace.Stat) error {
		if st.Kind != namespace.KindFile && st.Kind != namespace.KindHardlink {
			return nil
		}
		data, err := f.tree.Read(f.readView(), p)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), textPattern) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// walk depth-first visits every visible path under root, root
// inclusive, calling visit with each path and its Stat, resolved
// against the current view.
func (f *Facade) walk(root string, visit func(string, namespace.Stat) error) error {
	st, err := f.tree.Stat(f.readView(), root)
	if err != nil {
		return err
	}
	if err := visit(root, st); err != nil {
		return err
	}
	if st.Kind != namespace.KindDirectory {
		return nil
	}
	children, err := f.tree.List(f.readView(), root)
	if err != nil {
		return err
	}
	for _, c := range children {
		childPath := path.Join(root, c.Name)
		if err := f.walk(childPath, visit); err != nil {
			return err
		}
	}
	return nil
}

func (f *Facade) applyQuota(delta namespace.Delta) error {
	return f.quota.Apply(uint64(f.branches.Current().ID), delta.Bytes, delta.Refs, delta.Views)
}
