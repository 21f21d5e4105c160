package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/apierr"
)

var now = time.Unix(1700000000, 0)

func TestFSDeleteTransforms(t *testing.T) {
	e := New(Config{})
	v, err := e.Check(FSDelete, access.Default(), "/a.txt", "", "delete requested", now)
	if v != Transform {
		t.Fatalf("expected Transform, got %v", v)
	}
	if err != nil {
		t.Fatalf("transform must not be an error, got %v", err)
	}
}

func TestFSTruncateDenied(t *testing.T) {
	e := New(Config{})
	v, err := e.Check(FSTruncate, access.Default(), "/a.txt", "", "truncate requested", now)
	if v != Deny {
		t.Fatalf("expected Deny, got %v", v)
	}
	if !errors.Is(err, apierr.ErrDeniedByPolicy) {
		t.Fatalf("expected ErrDeniedByPolicy, got %v", err)
	}
}

func TestFSOverwriteAudited(t *testing.T) {
	e := New(Config{})
	v, err := e.Check(FSOverwrite, access.Default(), "/a.txt", "", "", now)
	if v != Audit || err != nil {
		t.Fatalf("expected Audit/nil, got %v/%v", v, err)
	}
}

func TestFSHideAllowed(t *testing.T) {
	e := New(Config{})
	v, err := e.Check(FSHide, access.Default(), "/a.txt", "", "", now)
	if v != Allow || err != nil {
		t.Fatalf("expected Allow/nil, got %v/%v", v, err)
	}
}

func TestMemFreeRequiresCapability(t *testing.T) {
	e := New(Config{})
	unprivileged := access.Default()
	if v, _ := e.Check(MemFree, unprivileged, "", "", "", now); v != Deny {
		t.Fatalf("expected Deny without capability, got %v", v)
	}
	privileged := access.Context{Caps: access.CapFreeMemory}
	if v, err := e.Check(MemFree, privileged, "", "", "", now); v != Allow || err != nil {
		t.Fatalf("expected Allow with capability, got %v/%v", v, err)
	}
}

func TestProcTerminateStrictModeDenies(t *testing.T) {
	e := New(Config{Strict: true})
	kernelCtx := access.Context{Caps: access.CapKernel}
	if v, _ := e.Check(ProcTerminate, kernelCtx, "", "", "", now); v != Deny {
		t.Fatalf("expected strict mode to deny even with kernel cap, got %v", v)
	}
}

func TestProcTerminateNonStrictAuditsWithKernelCap(t *testing.T) {
	e := New(Config{})
	kernelCtx := access.Context{Caps: access.CapKernel}
	if v, err := e.Check(ProcTerminate, kernelCtx, "", "", "", now); v != Audit || err != nil {
		t.Fatalf("expected Audit with kernel cap, got %v/%v", v, err)
	}
	unprivileged := access.Default()
	if v, _ := e.Check(ProcTerminate, unprivileged, "", "", "", now); v != Deny {
		t.Fatalf("expected Deny without kernel cap, got %v", v)
	}
}

func TestCountersTrackChecksAndVerdicts(t *testing.T) {
	e := New(Config{})
	e.Check(FSHide, access.Default(), "", "", "", now)
	e.Check(FSTruncate, access.Default(), "", "", "", now)
	e.Check(FSDelete, access.Default(), "", "", "", now)
	c := e.Counters()
	if c.Checks != 3 {
		t.Fatalf("expected 3 checks, got %d", c.Checks)
	}
	if c.Allowed != 1 || c.Denied != 1 || c.Transformed != 1 {
		t.Fatalf("unexpected counters: %+v", c)
	}
	if c.ByDomain[DomainFS] != 1 {
		t.Fatalf("expected 1 fs-domain violation, got %d", c.ByDomain[DomainFS])
	}
}

func TestAuditRingMostRecentFirst(t *testing.T) {
	e := New(Config{})
	e.Check(FSTruncate, access.Default(), "first", "", "", now)
	e.Check(FSTruncate, access.Default(), "second", "", "", now)
	entry, err := e.Audit(0)
	if err != nil {
		t.Fatalf("audit(0): %v", err)
	}
	if entry.Arg1 != "second" {
		t.Fatalf("expected most recent entry first, got %q", entry.Arg1)
	}
	entry, err = e.Audit(1)
	if err != nil {
		t.Fatalf("audit(1): %v", err)
	}
	if entry.Arg1 != "first" {
		t.Fatalf("expected second-most-recent entry, got %q", entry.Arg1)
	}
}

func TestAuditRingFixedCapacityWraps(t *testing.T) {
	e := New(Config{})
	for i := 0; i < AuditCapacity+10; i++ {
		e.Check(FSTruncate, access.Default(), "", "", "", now)
	}
	if e.AuditLen() != AuditCapacity {
		t.Fatalf("expected ring length capped at %d, got %d", AuditCapacity, e.AuditLen())
	}
	newest, err := e.Audit(0)
	if err != nil {
		t.Fatalf("audit(0): %v", err)
	}
	if newest.Sequence != uint64(AuditCapacity+10-1) {
		t.Fatalf("expected newest sequence %d, got %d", AuditCapacity+9, newest.Sequence)
	}
}

func TestAuditAllLogsAllowDecisions(t *testing.T) {
	e := New(Config{AuditAll: true})
	e.Check(FSHide, access.Default(), "", "", "", now)
	if e.AuditLen() != 1 {
		t.Fatalf("expected allow decision to be recorded with audit-all, got len %d", e.AuditLen())
	}
}

func TestReasonIsTruncatedToMaxBytes(t *testing.T) {
	e := New(Config{})
	long := make([]byte, MaxReasonBytes*2)
	for i := range long {
		long[i] = 'x'
	}
	e.Check(FSTruncate, access.Default(), "", "", string(long), now)
	entry, err := e.Audit(0)
	if err != nil {
		t.Fatalf("audit(0): %v", err)
	}
	if len(entry.Reason) != MaxReasonBytes {
		t.Fatalf("expected reason truncated to %d bytes, got %d", MaxReasonBytes, len(entry.Reason))
	}
}
