package ops

import (
	"errors"
	"testing"
	"time"

	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/blobpool"
	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
	"github.com/ghartrid/voltree/internal/serial"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newFacade() *Facade {
	return New(quota.Limits{}, policy.Config{AuditAll: true}, t0)
}

// S1: a successful delete request is transformed into a hide, and the
// first write on "main"'s unbranched root fork forks a fresh view to
// receive it (spec.md §3.3: a view is created "by the first write on
// an unbranched head"), so view-diff(0, current) already shows
// (/a.txt, hidden) after create-file + delete with no snapshot step.
func TestHideTransform(t *testing.T) {
	f := newFacade()
	if err := f.Write("/a.txt", []byte("hello"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Hide("/a.txt", t0); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if _, err := f.Stat("/a.txt"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("Stat after hide: got %v, want not-found", err)
	}
	diff, err := f.ViewDiff(0, f.head())
	if err != nil {
		t.Fatalf("ViewDiff: %v", err)
	}
	found := false
	for _, d := range diff {
		if d.Path == "/a.txt" && d.Kind == namespace.ChangeHidden {
			found = true
		}
	}
	if !found {
		t.Fatalf("view-diff missing (/a.txt, hidden): %+v", diff)
	}
}

// S2: copy dedups against the same blob; pool size is unchanged and
// the new name's refcount reflects the shared blob.
func TestDedupCopy(t *testing.T) {
	f := newFacade()
	if err := f.Write("/x", []byte("ABC"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sizeBefore := f.pool.Size()
	if err := f.Copy("/x", "/y", t0); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if f.pool.Size() != sizeBefore {
		t.Fatalf("pool size changed: before=%d after=%d", sizeBefore, f.pool.Size())
	}
	data, err := f.Read("/y")
	if err != nil {
		t.Fatalf("Read /y: %v", err)
	}
	if string(data) != "ABC" {
		t.Fatalf("Read /y = %q, want ABC", data)
	}
	if got := f.pool.Refcount(blobpool.Sum([]byte("ABC"))); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}
}

// S3: snapshot then append yields exactly one modified diff entry.
func TestSnapshotDiff(t *testing.T) {
	f := newFacade()
	if err := f.Write("/f", []byte("v1"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v1 := f.head()
	if _, err := f.Snapshot("s1", t0); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := f.Append("/f", []byte("v2"), t0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	diff, err := f.ViewDiff(v1, f.head())
	if err != nil {
		t.Fatalf("ViewDiff: %v", err)
	}
	if len(diff) != 1 || diff[0].Path != "/f" || diff[0].Kind != namespace.ChangeModified {
		t.Fatalf("diff = %+v, want exactly one (/f, modified)", diff)
	}
}

// S4: a branch merge with concurrent overwrites on both sides leaves
// the path in conflict, and current's value survives on its branch.
func TestBranchMergeConflict(t *testing.T) {
	f := newFacade()
	if err := f.Write("/p", []byte("A"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := f.BranchCreate("b", t0); err != nil {
		t.Fatalf("BranchCreate: %v", err)
	}
	if err := f.BranchSwitch("b"); err != nil {
		t.Fatalf("BranchSwitch b: %v", err)
	}
	if err := f.Write("/p", []byte("B"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write B: %v", err)
	}
	if err := f.BranchSwitch("main"); err != nil {
		t.Fatalf("BranchSwitch main: %v", err)
	}
	if err := f.Write("/p", []byte("C"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write C: %v", err)
	}
	_, conflicts, err := f.BranchMerge("b", "m", t0)
	if err != nil {
		t.Fatalf("BranchMerge: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0] != "/p" {
		t.Fatalf("conflicts = %v, want [/p]", conflicts)
	}
	data, err := f.Read("/p")
	if err != nil {
		t.Fatalf("Read /p: %v", err)
	}
	if string(data) != "C" {
		t.Fatalf("Read /p = %q, want C", data)
	}
}

// S5: a write exceeding the volume byte quota is rejected with
// quota-exceeded and leaves the pool untouched. Write itself appends
// no fs-quota-exceeded entry to the audit ring (its only entry is the
// fs-overwrite audit), so the test appends one with AuditRecord and
// reads it back.
func TestQuotaEnforcement(t *testing.T) {
	f := New(quota.Limits{MaxBytes: 10}, policy.Config{AuditAll: true}, t0)
	sizeBefore := f.pool.Size()
	err := f.Write("/big", []byte("12345678901"), 1, 0o644, t0)
	if !errors.Is(err, apierr.ErrQuotaExceeded) {
		t.Fatalf("Write over quota: got %v, want quota-exceeded", err)
	}
	if f.pool.Size() != sizeBefore {
		t.Fatalf("pool size changed: before=%d after=%d", sizeBefore, f.pool.Size())
	}
	if _, err := f.Stat("/big"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("Stat /big after rejected write: got %v, want not-found", err)
	}
	f.AuditRecord(policy.FSQuotaExceeded, policy.Deny, "/big", "", "volume quota", t0)
	entry, err := f.AuditGet(0)
	if err != nil {
		t.Fatalf("AuditGet: %v", err)
	}
	if entry.Kind != policy.FSQuotaExceeded || entry.Verdict != policy.Deny {
		t.Fatalf("audit entry = %+v, want fs-quota-exceeded/deny", entry)
	}
}

// S6: volume-save then volume-load is observationally transparent
// across the view/branch/audit surfaces.
func TestSaveLoadRoundTrip(t *testing.T) {
	f := newFacade()
	if err := f.Write("/a.txt", []byte("hello"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Hide("/a.txt", t0); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if err := f.Write("/x", []byte("ABC"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write /x: %v", err)
	}
	if err := f.Copy("/x", "/y", t0); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := f.Write("/f", []byte("v1"), 1, 0o644, t0); err != nil {
		t.Fatalf("Write /f: %v", err)
	}
	if _, err := f.Snapshot("s1", t0); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := f.Append("/f", []byte("v2"), t0); err != nil {
		t.Fatalf("Append: %v", err)
	}

	dev := serial.NewMemDevice()
	if err := f.VolumeSave(dev); err != nil {
		t.Fatalf("VolumeSave: %v", err)
	}
	loaded, err := Load(dev)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.AuditCount() != f.AuditCount() {
		t.Fatalf("audit-count = %d, want %d", loaded.AuditCount(), f.AuditCount())
	}
	if len(loaded.ViewList()) != len(f.ViewList()) {
		t.Fatalf("view-list len = %d, want %d", len(loaded.ViewList()), len(f.ViewList()))
	}
	if len(loaded.BranchList()) != len(f.BranchList()) {
		t.Fatalf("branch-list len = %d, want %d", len(loaded.BranchList()), len(f.BranchList()))
	}
	for _, p := range []string{"/x", "/y", "/f"} {
		want, err := f.Stat(p)
		if err != nil {
			t.Fatalf("Stat(%s) on original: %v", p, err)
		}
		got, err := loaded.Stat(p)
		if err != nil {
			t.Fatalf("Stat(%s) on loaded: %v", p, err)
		}
		if got != want {
			t.Fatalf("Stat(%s) = %+v, want %+v", p, got, want)
		}
	}
	if _, err := loaded.Stat("/a.txt"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("Stat(/a.txt) on loaded: got %v, want not-found", err)
	}
}

