// Package quota implements the Quota Accountant: per-volume and
// per-branch limits on content bytes, reference count, and view
// count, enforced before a mutation's effects become visible (spec.md
// §4.6).
package quota

import (
	"fmt"

	"github.com/ghartrid/voltree/internal/apierr"
)

// Limits holds the three dimensions a Record can bound; zero means
// unlimited in that dimension (spec.md §3.6).
type Limits struct {
	MaxBytes int64
	MaxRefs  int64
	MaxViews int64
}

// Usage holds the running totals a Record tracks against its Limits.
type Usage struct {
	Bytes int64
	Refs  int64
	Views int64
}

// Record pairs one scope's limits with its current usage (spec.md
// §3.6).
type Record struct {
	Limits Limits
	Usage  Usage
}

func (r Record) exceeds() bool {
	if r.Limits.MaxBytes != 0 && r.Usage.Bytes > r.Limits.MaxBytes {
		return true
	}
	if r.Limits.MaxRefs != 0 && r.Usage.Refs > r.Limits.MaxRefs {
		return true
	}
	if r.Limits.MaxViews != 0 && r.Usage.Views > r.Limits.MaxViews {
		return true
	}
	return false
}

func (r Record) apply(bytes, refs, views int64) Record {
	r.Usage.Bytes += bytes
	r.Usage.Refs += refs
	r.Usage.Views += views
	return r
}

// Accountant tracks one volume-wide Record plus a Record per branch
// (spec.md §4.6). A zero Accountant is not usable; create one with
// New.
type Accountant struct {
	volume   Record
	branches map[uint64]Record
}

// New creates an Accountant with the given volume-wide limits and no
// branch-specific limits yet.
func New(volumeLimits Limits) *Accountant {
	return &Accountant{
		volume:   Record{Limits: volumeLimits},
		branches: make(map[uint64]Record),
	}
}

// SetBranchLimits installs (or replaces) the limits for branch,
// preserving its accumulated usage.
func (a *Accountant) SetBranchLimits(branch uint64, limits Limits) {
	r := a.branches[branch]
	r.Limits = limits
	a.branches[branch] = r
}

// SetVolumeLimits installs (or replaces) the volume-wide limits,
// preserving accumulated usage (spec.md §6.1 "quota-set(scope,
// limits)" with scope "volume").
func (a *Accountant) SetVolumeLimits(limits Limits) {
	a.volume.Limits = limits
}

// VolumeUsage returns the volume-wide running totals.
func (a *Accountant) VolumeUsage() Usage {
	return a.volume.Usage
}

// BranchUsage returns branch's running totals.
func (a *Accountant) BranchUsage(branch uint64) Usage {
	return a.branches[branch].Usage
}

// VolumeRecord returns the volume-wide limits and usage.
func (a *Accountant) VolumeRecord() Record {
	return a.volume
}

// BranchIDs returns every branch id with a tracked record, in no
// particular order.
func (a *Accountant) BranchIDs() []uint64 {
	out := make([]uint64, 0, len(a.branches))
	for id := range a.branches {
		out = append(out, id)
	}
	return out
}

// BranchRecord returns branch's limits and usage.
func (a *Accountant) BranchRecord(branch uint64) Record {
	return a.branches[branch]
}

// Restore rebuilds an Accountant from a previously serialised volume
// record and per-branch records (used by the Serialiser's Load path).
func Restore(volume Record, branches map[uint64]Record) *Accountant {
	a := &Accountant{volume: volume, branches: make(map[uint64]Record, len(branches))}
	for id, r := range branches {
		a.branches[id] = r
	}
	return a
}

// Apply applies delta (bytes, refs, views) to both branch's and the
// volume's counters, checking every active limit. A violation is
// rolled back before this call returns, so the Accountant's state is
// unchanged on error (spec.md §4.6 "rolled back before any visible
// state changes").
func (a *Accountant) Apply(branch uint64, bytes, refs, views int64) error {
	branchRecord := a.branches[branch]
	newBranch := branchRecord.apply(bytes, refs, views)
	newVolume := a.volume.apply(bytes, refs, views)

	if newBranch.exceeds() || newVolume.exceeds() {
		return fmt.Errorf("%w: branch=%d bytes=%d refs=%d views=%d", apierr.ErrQuotaExceeded, branch, bytes, refs, views)
	}

	a.branches[branch] = newBranch
	a.volume = newVolume
	return nil
}
