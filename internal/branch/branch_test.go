package branch

import (
	"testing"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/blobpool"
	"github.com/ghartrid/voltree/internal/namespace"
)

func setup(t *testing.T) (*namespace.Graph, *namespace.Tree, *Registry, time.Time) {
	t.Helper()
	now := time.Unix(1700000000, 0)
	g := namespace.NewGraph(now)
	pool := blobpool.New()
	tree := namespace.NewTree(g, pool)
	reg := NewRegistry(g, now)
	return g, tree, reg, now
}

var owner = access.Context{UID: 1, Caps: access.CapUser}

func TestCreateBranchesFromCurrentHead(t *testing.T) {
	_, tree, reg, now := setup(t)
	if _, err := tree.CreateFile(reg.Current().HeadView, owner, "/a.txt", []byte("a"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := reg.Create("feature", now)
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if b.BaseView != reg.branches[0].HeadView {
		t.Fatalf("expected new branch base to equal main's head")
	}
}

func TestMergeNonConflictingAdditionFromSource(t *testing.T) {
	g, tree, reg, now := setup(t)
	main := reg.Current()

	feature, err := reg.Create("feature", now)
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	featureHead, err := g.Fork(feature.HeadView, "feature-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(feature, featureHead)
	if _, err := tree.CreateFile(feature.HeadView, owner, "/new.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create on feature: %v", err)
	}

	mainHead, err := g.Fork(main.HeadView, "main-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(main, mainHead)

	newHead, conflicts, err := Merge(g, main, feature, "merge-feature", now)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}
	got, err := tree.Read(newHead, "/new.txt")
	if err != nil {
		t.Fatalf("expected merged file to be readable: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}
	listed, err := tree.List(newHead, "/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "new.txt" {
		t.Fatalf("expected merged directory listing to include new.txt, got %+v", listed)
	}
}

func TestMergeConflictingModificationIsReportedAndCurrentWins(t *testing.T) {
	g, tree, reg, now := setup(t)
	main := reg.Current()
	if _, err := tree.CreateFile(main.HeadView, owner, "/f.txt", []byte("base"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}

	feature, err := reg.Create("feature", now)
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	featureHead, err := g.Fork(feature.HeadView, "feature-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(feature, featureHead)
	if _, err := tree.Overwrite(feature.HeadView, owner, "/f.txt", []byte("from-feature")); err != nil {
		t.Fatalf("overwrite on feature: %v", err)
	}

	mainHead, err := g.Fork(main.HeadView, "main-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(main, mainHead)
	if _, err := tree.Overwrite(main.HeadView, owner, "/f.txt", []byte("from-main")); err != nil {
		t.Fatalf("overwrite on main: %v", err)
	}

	newHead, conflicts, err := Merge(g, main, feature, "merge-feature", now)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0] != "/f.txt" {
		t.Fatalf("expected conflict on /f.txt, got %v", conflicts)
	}
	got, err := tree.Read(newHead, "/f.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "from-main" {
		t.Fatalf("expected current side retained, got %q", got)
	}
}

func TestMergeHideWinsOverModify(t *testing.T) {
	g, tree, reg, now := setup(t)
	main := reg.Current()
	if _, err := tree.CreateFile(main.HeadView, owner, "/f.txt", []byte("base"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}

	feature, err := reg.Create("feature", now)
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	featureHead, err := g.Fork(feature.HeadView, "feature-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(feature, featureHead)
	if err := tree.Hide(feature.HeadView, owner, "/f.txt"); err != nil {
		t.Fatalf("hide on feature: %v", err)
	}

	mainHead, err := g.Fork(main.HeadView, "main-work", now)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	reg.AdvanceHead(main, mainHead)
	if _, err := tree.Overwrite(main.HeadView, owner, "/f.txt", []byte("from-main")); err != nil {
		t.Fatalf("overwrite on main: %v", err)
	}

	newHead, conflicts, err := Merge(g, main, feature, "merge-feature", now)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}
	if _, err := tree.Read(newHead, "/f.txt"); err == nil {
		t.Fatalf("expected hide to win, file should be gone")
	}
}
