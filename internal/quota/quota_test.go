package quota

import (
	"errors"
	"testing"

	"github.com/ghartrid/voltree/internal/apierr"
)

func TestApplyWithinLimitsSucceeds(t *testing.T) {
	a := New(Limits{MaxBytes: 100})
	if err := a.Apply(1, 50, 1, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if a.VolumeUsage().Bytes != 50 {
		t.Fatalf("expected volume bytes 50, got %d", a.VolumeUsage().Bytes)
	}
	if a.BranchUsage(1).Bytes != 50 {
		t.Fatalf("expected branch bytes 50, got %d", a.BranchUsage(1).Bytes)
	}
}

func TestApplyOverVolumeLimitRollsBack(t *testing.T) {
	a := New(Limits{MaxBytes: 100})
	if err := a.Apply(1, 50, 0, 0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := a.Apply(1, 60, 0, 0); !errors.Is(err, apierr.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if a.VolumeUsage().Bytes != 50 {
		t.Fatalf("expected rollback to leave volume bytes at 50, got %d", a.VolumeUsage().Bytes)
	}
	if a.BranchUsage(1).Bytes != 50 {
		t.Fatalf("expected rollback to leave branch bytes at 50, got %d", a.BranchUsage(1).Bytes)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	a := New(Limits{})
	if err := a.Apply(1, 1<<40, 1<<40, 1<<40); err != nil {
		t.Fatalf("expected unlimited dimensions to accept any delta, got %v", err)
	}
}

func TestBranchLimitIndependentOfOtherBranches(t *testing.T) {
	a := New(Limits{})
	a.SetBranchLimits(1, Limits{MaxBytes: 10})
	a.SetBranchLimits(2, Limits{MaxBytes: 10})
	if err := a.Apply(1, 10, 0, 0); err != nil {
		t.Fatalf("apply branch 1: %v", err)
	}
	if err := a.Apply(2, 10, 0, 0); err != nil {
		t.Fatalf("apply branch 2: %v", err)
	}
	if err := a.Apply(1, 1, 0, 0); !errors.Is(err, apierr.ErrQuotaExceeded) {
		t.Fatalf("expected branch 1 to be over limit, got %v", err)
	}
}

func TestViewCountLimit(t *testing.T) {
	a := New(Limits{MaxViews: 2})
	if err := a.Apply(1, 0, 0, 2); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := a.Apply(1, 0, 0, 1); !errors.Is(err, apierr.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded on view overflow, got %v", err)
	}
}
