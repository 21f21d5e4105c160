package namespace

import (
	"errors"
	"testing"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/blobpool"
)

func newTestTree(t *testing.T) (*Tree, *Graph, ViewID) {
	t.Helper()
	now := time.Unix(1700000000, 0)
	g := NewGraph(now)
	pool := blobpool.New()
	tree := NewTree(g, pool)
	head, err := g.Fork(0, "head", now)
	if err != nil {
		t.Fatalf("fork head: %v", err)
	}
	return tree, g, head
}

var owner = access.Context{UID: 1, GID: 1, Caps: access.CapUser}
var other = access.Context{UID: 2, GID: 2, Caps: access.CapUser}
var kernel = access.Context{UID: 0, GID: 0, Caps: access.CapKernelFull}

func TestCreateFileAndRead(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/hello.txt", []byte("hi"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := tree.Read(head, "/hello.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestCreateFileDuplicateNameFails(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("y"), 1, 0o644, now); !errors.Is(err, apierr.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestAppendGrowsContent(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/log.txt", []byte("a"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tree.Append(head, owner, "/log.txt", []byte("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := tree.Read(head, "/log.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "ab" {
		t.Fatalf("got %q, want %q", got, "ab")
	}
}

func TestOverwriteReplacesContent(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/f.txt", []byte("old"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tree.Overwrite(head, owner, "/f.txt", []byte("new")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := tree.Read(head, "/f.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
}

func TestHideMasksButPreservesAncestorView(t *testing.T) {
	tree, g, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/f.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshotID, err := g.Snapshot(head, "s1", now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := tree.Hide(snapshotID, owner, "/f.txt"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if _, _, err := tree.Resolve(snapshotID, "/f.txt"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected hidden file to resolve not-found, got %v", err)
	}
	if _, _, err := tree.Resolve(head, "/f.txt"); err != nil {
		t.Fatalf("expected file still visible in pre-snapshot view, got %v", err)
	}
}

func TestMoveRenamesAcrossDirectories(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if err := tree.Mkdir(head, owner, "/dir", 1, 0o755, now); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tree.Move(head, owner, "/a.txt", "/dir/b.txt"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, _, err := tree.Resolve(head, "/a.txt"); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("expected source gone, got %v", err)
	}
	got, err := tree.Read(head, "/dir/b.txt")
	if err != nil {
		t.Fatalf("read moved file: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}
}

func TestCopySharesBlobAndIncrementsRefcount(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("same"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, aSnap, err := tree.Resolve(head, "/a.txt")
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	before := tree.pool.Refcount(aSnap.BlobHash)
	if err := tree.Copy(head, owner, "/a.txt", "/b.txt", now); err != nil {
		t.Fatalf("copy: %v", err)
	}
	_, bSnap, err := tree.Resolve(head, "/b.txt")
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if bSnap.BlobHash != aSnap.BlobHash {
		t.Fatalf("expected copy to share blob hash")
	}
	after := tree.pool.Refcount(aSnap.BlobHash)
	if after != before+1 {
		t.Fatalf("expected refcount %d, got %d", before+1, after)
	}
}

func TestHardlinkSharesIdentityAndBumpsLinkCount(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tree.Hardlink(head, owner, "/a.txt", "/b.txt", now); err != nil {
		t.Fatalf("hardlink: %v", err)
	}
	_, aSnap, err := tree.Resolve(head, "/a.txt")
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	_, bSnap, err := tree.Resolve(head, "/b.txt")
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if aSnap.LinkCount != 2 || bSnap.LinkCount != 2 {
		t.Fatalf("expected link count 2 on both sides, got a=%d b=%d", aSnap.LinkCount, bSnap.LinkCount)
	}
	if aSnap.BlobHash != bSnap.BlobHash {
		t.Fatalf("expected shared blob hash")
	}
}

func TestSymlinkStoresTargetVerbatimAndResolves(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/real.txt", []byte("x"), 1, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tree.Symlink(head, owner, "/real.txt", "/link.txt", 1, now); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	target, err := tree.Readlink(head, "/link.txt")
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "/real.txt" {
		t.Fatalf("got target %q, want /real.txt", target)
	}
	got, err := tree.Read(head, "/link.txt")
	if err != nil {
		t.Fatalf("read through symlink: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}
}

func TestSymlinkLoopDetected(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if err := tree.Symlink(head, owner, "/b.txt", "/a.txt", 1, now); err != nil {
		t.Fatalf("symlink a: %v", err)
	}
	if err := tree.Symlink(head, owner, "/a.txt", "/b.txt", 1, now); err != nil {
		t.Fatalf("symlink b: %v", err)
	}
	if _, _, err := tree.Resolve(head, "/a.txt"); !errors.Is(err, apierr.ErrLoopDetected) {
		t.Fatalf("expected ErrLoopDetected, got %v", err)
	}
}

func TestChmodAndChownRequireOwnerOrPrivilege(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if _, err := tree.CreateFile(head, owner, "/a.txt", []byte("x"), owner.UID, 0o644, now); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tree.Chmod(head, other, "/a.txt", 0o600); !errors.Is(err, apierr.ErrPermDenied) {
		t.Fatalf("expected ErrPermDenied for non-owner chmod, got %v", err)
	}
	if err := tree.Chmod(head, owner, "/a.txt", 0o600); err != nil {
		t.Fatalf("owner chmod: %v", err)
	}
	if err := tree.Chown(head, kernel, "/a.txt", 99); err != nil {
		t.Fatalf("privileged chown: %v", err)
	}
	_, snap, err := tree.Resolve(head, "/a.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if snap.Owner != 99 {
		t.Fatalf("got owner %d, want 99", snap.Owner)
	}
}

func TestWriteDeniedWithoutOtherWriteBit(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if err := tree.Mkdir(head, owner, "/dir", owner.UID, 0o700, now); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := tree.CreateFile(head, other, "/dir/x.txt", []byte("x"), other.UID, 0o644, now); !errors.Is(err, apierr.ErrPermDenied) {
		t.Fatalf("expected ErrPermDenied, got %v", err)
	}
}

func TestKernelCapabilityOverridesPermission(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if err := tree.Mkdir(head, owner, "/dir", owner.UID, 0o700, now); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := tree.CreateFile(head, kernel, "/dir/x.txt", []byte("x"), 0, 0o644, now); err != nil {
		t.Fatalf("expected kernel cap to override permission, got %v", err)
	}
}

func TestListReturnsChildrenInInsertionOrder(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	names := []string{"/c.txt", "/a.txt", "/b.txt"}
	for _, n := range names {
		if _, err := tree.CreateFile(head, owner, n, []byte("x"), 1, 0o644, now); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}
	entries, err := tree.List(head, "/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"c.txt", "a.txt", "b.txt"} {
		if entries[i].Name != want {
			t.Fatalf("entry %d: got %q, want %q", i, entries[i].Name, want)
		}
	}
}

func TestReadOnDirectoryFails(t *testing.T) {
	tree, _, head := newTestTree(t)
	now := time.Unix(1700000001, 0)
	if err := tree.Mkdir(head, owner, "/dir", 1, 0o755, now); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := tree.Read(head, "/dir"); !errors.Is(err, apierr.ErrIsADirectory) {
		t.Fatalf("expected ErrIsADirectory, got %v", err)
	}
}
