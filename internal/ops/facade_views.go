package ops

import (
	"time"

	"github.com/ghartrid/voltree/internal/namespace"
)

// ViewList returns every view id in creation order (spec.md §6.1
// "view-list").
func (f *Facade) ViewList() []namespace.ViewID {
	return f.graph.List()
}

// ViewSwitch points subsequent read-only calls at view instead of the
// current branch's head, without moving the branch cursor (spec.md
// §6.1 "view-switch"). Mutations are unaffected: they always target
// the branch head (see Facade.head).
func (f *Facade) ViewSwitch(view namespace.ViewID) error {
	if _, err := f.graph.Get(view); err != nil {
		return err
	}
	f.cursor = view
	return nil
}

// Snapshot freezes the current branch's head and advances it to a new
// child view, returning the new view id (spec.md §6.1
// "snapshot(label)").
func (f *Facade) Snapshot(label string, now time.Time) (namespace.ViewID, error) {
	b := f.branches.Current()
	newHead, err := f.graph.Snapshot(b.HeadView, label, now)
	if err != nil {
		return 0, err
	}
	f.branches.AdvanceHead(b, newHead)
	if err := f.quota.Apply(uint64(b.ID), 0, 0, 1); err != nil {
		return 0, err
	}
	f.cursor = newHead
	return newHead, nil
}

// ViewDiff returns the paths that changed between views a and b
// (spec.md §6.1 "view-diff(a, b)").
func (f *Facade) ViewDiff(a, b namespace.ViewID) ([]namespace.DiffEntry, error) {
	return f.graph.Diff(a, b)
}
