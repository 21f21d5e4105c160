package ops

import (
	"time"

	"github.com/ghartrid/voltree/internal/branch"
	"github.com/ghartrid/voltree/internal/namespace"
)

// BranchList returns every branch in creation order (spec.md §6.1
// "branch-list").
func (f *Facade) BranchList() []*branch.Branch {
	return f.branches.List()
}

// BranchCreate forks a new branch off the current branch's head
// (spec.md §6.1 "branch-create(name)").
func (f *Facade) BranchCreate(name string, now time.Time) (*branch.Branch, error) {
	return f.branches.Create(name, now)
}

// BranchSwitch moves the current-branch cursor to name and resets the
// read cursor to that branch's head (spec.md §6.1
// "branch-switch(name)").
func (f *Facade) BranchSwitch(name string) error {
	if err := f.branches.SwitchByName(name); err != nil {
		return err
	}
	f.cursor = f.head()
	return nil
}

// BranchMerge three-way merges source onto the current branch,
// advancing the current branch's head to the merged view and
// returning it along with any paths left in conflict (spec.md §6.1
// "branch-merge(source_branch, label)").
func (f *Facade) BranchMerge(source, label string, now time.Time) (namespace.ViewID, []string, error) {
	current := f.branches.Current()
	src, err := f.branches.Get(source)
	if err != nil {
		return 0, nil, err
	}
	newHead, conflicts, err := branch.Merge(f.graph, current, src, label, now)
	if err != nil {
		return 0, nil, err
	}
	f.branches.AdvanceHead(current, newHead)
	if err := f.quota.Apply(uint64(current.ID), 0, 0, 1); err != nil {
		return 0, nil, err
	}
	f.cursor = newHead
	return newHead, conflicts, nil
}

// BranchDiff returns the paths that changed between two branches'
// head views (spec.md §6.1 "branch-diff(a, b)").
func (f *Facade) BranchDiff(a, b string) ([]namespace.DiffEntry, error) {
	branchA, err := f.branches.Get(a)
	if err != nil {
		return nil, err
	}
	branchB, err := f.branches.Get(b)
	if err != nil {
		return nil, err
	}
	return f.graph.Diff(branchA.HeadView, branchB.HeadView)
}
