package blobpool

import (
	"errors"
	"testing"
)

func TestPutIsDeduplicatedAndIdempotent(t *testing.T) {
	p := New()
	h1 := p.Put([]byte("ABC"))
	h2 := p.Put([]byte("ABC"))
	if h1 != h2 {
		t.Fatalf("expected identical hash for identical content, got %s vs %s", h1, h2)
	}
	if got := p.Refcount(h1); got != 2 {
		t.Fatalf("expected refcount 2 after two Puts, got %d", got)
	}
	if got := p.Count(); got != 1 {
		t.Fatalf("expected one distinct blob, got %d", got)
	}
}

func TestGetRoundTrip(t *testing.T) {
	p := New()
	h := p.Put([]byte("hello"))
	got, err := p.Get(h)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get returned %q, want %q", got, "hello")
	}
}

func TestGetNotFound(t *testing.T) {
	p := New()
	_, err := p.Get(Hash{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReleaseNeverDeletes(t *testing.T) {
	p := New()
	h := p.Put([]byte("x"))
	if err := p.Release(h); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if got := p.Refcount(h); got != 0 {
		t.Fatalf("expected refcount 0 after release, got %d", got)
	}
	if _, err := p.Get(h); err != nil {
		t.Fatalf("blob with refcount 0 must still be retrievable, got error: %v", err)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	p := New()
	h := p.Put([]byte("x"))
	if err := p.Release(h); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if got := p.Refcount(h); got != 0 {
		t.Fatalf("expected refcount to clamp at 0, got %d", got)
	}
}

func TestSizeIsSumOfDistinctBlobLengths(t *testing.T) {
	p := New()
	p.Put([]byte("ABC"))
	p.Put([]byte("ABC")) // dedup: size must not double-count
	p.Put([]byte("DE"))
	if got, want := p.Size(), int64(5); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
}

func TestPurgeOnlyRemovesZeroRefcountAndUnreachable(t *testing.T) {
	p := New()
	live := p.Put([]byte("live"))
	dead := p.Put([]byte("dead"))
	if err := p.Release(dead); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	purged := p.Purge(map[Hash]struct{}{live: {}, dead: {}})
	if purged != 1 {
		t.Fatalf("expected 1 blob purged, got %d", purged)
	}
	if _, err := p.Get(live); err != nil {
		t.Fatalf("live blob (refcount > 0) must survive Purge, got error: %v", err)
	}
	if _, err := p.Get(dead); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dead blob (refcount 0, unreachable) should be purged, got err=%v", err)
	}
}

func TestSumIsDeterministic(t *testing.T) {
	a := Sum([]byte("content"))
	b := Sum([]byte("content"))
	if a != b {
		t.Fatalf("Sum must be deterministic, got %s vs %s", a, b)
	}
	if Sum([]byte("content")) == Sum([]byte("content2")) {
		t.Fatalf("distinct content must not share a hash")
	}
}
