package serial_test

import (
	"testing"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/blobpool"
	"github.com/ghartrid/voltree/internal/branch"
	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
	"github.com/ghartrid/voltree/internal/serial"
)

func buildState(t *testing.T) *serial.State {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	pool := blobpool.New()
	graph := namespace.NewGraph(now)
	tree := namespace.NewTree(graph, pool)
	owner := access.Context{UID: 1, Caps: access.CapUser}

	if _, err := tree.CreateFile(0, owner, "/hello.txt", []byte("hi"), 1, 0o644, now); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := tree.Mkdir(0, owner, "/dir", 1, 0o755, now); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	registry := branch.NewRegistry(graph, now)
	if _, err := registry.Create("feature", now); err != nil {
		t.Fatalf("Create branch: %v", err)
	}
	if err := registry.SwitchByName("feature"); err != nil {
		t.Fatalf("SwitchByName: %v", err)
	}

	accountant := quota.New(quota.Limits{MaxBytes: 1 << 20})
	accountant.SetBranchLimits(1, quota.Limits{MaxBytes: 1 << 10})
	if err := accountant.Apply(1, 2, 1, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	engine := policy.New(policy.Config{AuditAll: true})
	if _, err := engine.Check(policy.FSOverwrite, owner, "/hello.txt", "", "seed", now); err != nil {
		t.Fatalf("Check: %v", err)
	}

	return &serial.State{Pool: pool, Graph: graph, Branch: registry, Quota: accountant, Policy: engine}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	state := buildState(t)
	dev := serial.NewMemDevice()

	if err := serial.Save(dev, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := serial.Load(dev)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := loaded.Pool.Count(), state.Pool.Count(); got != want {
		t.Fatalf("blob count = %d, want %d", got, want)
	}
	for _, h := range state.Pool.Hashes() {
		gotBytes, err := loaded.Pool.Get(h)
		if err != nil {
			t.Fatalf("loaded pool missing hash %s: %v", h, err)
		}
		wantBytes, _ := state.Pool.Get(h)
		if string(gotBytes) != string(wantBytes) {
			t.Fatalf("blob %s content mismatch", h)
		}
		if got, want := loaded.Pool.Refcount(h), state.Pool.Refcount(h); got != want {
			t.Fatalf("blob %s refcount = %d, want %d", h, got, want)
		}
	}

	if got, want := len(loaded.Graph.List()), len(state.Graph.List()); got != want {
		t.Fatalf("view count = %d, want %d", got, want)
	}

	loadedTree := namespace.NewTree(loaded.Graph, loaded.Pool)
	data, err := loadedTree.Read(0, "/hello.txt")
	if err != nil {
		t.Fatalf("Read after load: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("content after load = %q, want %q", data, "hi")
	}
	if _, err := loadedTree.Stat(0, "/dir"); err != nil {
		t.Fatalf("Stat after load: %v", err)
	}

	if got, want := loaded.Branch.Current().Name, state.Branch.Current().Name; got != want {
		t.Fatalf("current branch = %q, want %q", got, want)
	}
	if got, want := len(loaded.Branch.List()), len(state.Branch.List()); got != want {
		t.Fatalf("branch count = %d, want %d", got, want)
	}

	if got, want := loaded.Quota.VolumeUsage(), state.Quota.VolumeUsage(); got != want {
		t.Fatalf("volume usage = %+v, want %+v", got, want)
	}
	if got, want := loaded.Quota.BranchUsage(1), state.Quota.BranchUsage(1); got != want {
		t.Fatalf("branch usage = %+v, want %+v", got, want)
	}

	if got, want := loaded.Policy.AuditLen(), state.Policy.AuditLen(); got != want {
		t.Fatalf("audit len = %d, want %d", got, want)
	}
	if got, want := loaded.Policy.Counters().Checks, state.Policy.Counters().Checks; got != want {
		t.Fatalf("audit checks = %d, want %d", got, want)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	state := buildState(t)
	dev := serial.NewMemDevice()
	if err := serial.Save(dev, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	buf := dev.Bytes()
	buf[0] ^= 0xff

	if _, err := serial.Load(dev); err == nil {
		t.Fatal("Load with corrupted magic succeeded, want error")
	}
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	state := buildState(t)
	dev := serial.NewMemDevice()
	if err := serial.Save(dev, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	buf := dev.Bytes()
	buf[len(buf)-1] ^= 0xff // flip a body byte, leave the header's checksum untouched

	if _, err := serial.Load(dev); err == nil {
		t.Fatal("Load with corrupted body succeeded, want error")
	}
}

func TestLoadRejectsTruncatedDevice(t *testing.T) {
	dev := serial.NewMemDevice()
	if _, err := dev.WriteAt([]byte{1, 2, 3}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if _, err := serial.Load(dev); err == nil {
		t.Fatal("Load of a truncated device succeeded, want error")
	}
}
