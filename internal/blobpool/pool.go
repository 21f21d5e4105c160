// Package blobpool implements the Engine's content-addressed blob store:
// immutable byte blobs keyed by a collision-resistant hash, deduplicated
// and reference-counted.
package blobpool

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Hash is the fixed-width content identifier of a blob. Two distinct
// inputs are assumed not to share a hash.
type Hash [32]byte

// String renders the hash as a lowercase hex string for logs and audit
// argument words.
func (h Hash) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(h)*2)
	for i, b := range h {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// IsZero reports whether h is the zero hash (used as a sentinel for
// "no blob").
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ErrNotFound is returned by Get and Length when the hash is absent
// from the pool.
var ErrNotFound = errors.New("blobpool: not found")

// blob is the pool's internal record for one content hash.
type blob struct {
	bytes    []byte
	refcount int64
}

// Pool is a content-addressed key/value store of immutable byte blobs.
// A zero Pool is not usable; create one with New. Pool is safe for
// concurrent use by multiple goroutines, though the Engine itself only
// ever has one goroutine driving it (spec.md §5).
type Pool struct {
	mu    sync.Mutex
	blobs map[Hash]*blob
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{blobs: make(map[Hash]*blob)}
}

// Sum computes the content hash of data without storing it.
func Sum(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// Put stores data under its content hash. If the hash is already
// present the call is idempotent: the existing bytes are kept (they
// are assumed identical, per the collision-resistance assumption) and
// the refcount is incremented. Put never returns an error: it cannot
// fail short of a nil receiver.
func (p *Pool) Put(data []byte) Hash {
	h := Sum(data)
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		p.blobs[h] = &blob{bytes: cp, refcount: 1}
		return h
	}
	b.refcount++
	return h
}

// PutNoRetain stores data under its content hash without bumping the
// refcount, for callers (the Serialiser's Load path) that are
// reconstructing a pool whose refcounts are recorded independently in
// the on-disk format.
func (p *Pool) PutNoRetain(data []byte, refcount int64) Hash {
	h := Sum(data)
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.blobs[h] = &blob{bytes: cp, refcount: refcount}
	return h
}

// Get returns the bytes stored under hash, or ErrNotFound if absent.
// The returned slice is a copy; callers may not mutate pool state
// through it.
func (p *Pool) Get(h Hash) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out, nil
}

// Length returns the byte length of the blob stored under hash.
func (p *Pool) Length(h Hash) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	return len(b.bytes), nil
}

// Refcount returns the current reference count of hash, or 0 if the
// hash is not present.
func (p *Pool) Refcount(h Hash) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		return 0
	}
	return b.refcount
}

// Retain increments the refcount of an existing blob. It is the
// caller's responsibility (the Namespace Tree) to call Retain exactly
// once per new namespace reference to the hash (copy, hardlink).
func (p *Pool) Retain(h Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	b.refcount++
	return nil
}

// Release decrements the refcount of hash. Release never deletes the
// blob: retention is the policy default (spec.md §3.1(c)). A refcount
// of 0 makes the blob eligible for reclamation by Purge, not a
// guarantee of reclamation.
func (p *Pool) Release(h Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	if b.refcount > 0 {
		b.refcount--
	}
	return nil
}

// Size returns the sum of all stored blob lengths (testable property
// 7 in spec.md §8 calls this "pool size").
func (p *Pool) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int64
	for _, b := range p.blobs {
		total += int64(len(b.bytes))
	}
	return total
}

// Count returns the number of distinct blobs currently stored.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blobs)
}

// Purge discards every blob whose hash is in unreachable and whose
// refcount is 0. It is the building block for the optional `compact`
// operation (spec.md §9 Open Question #1), which the Facade does not
// expose: the Engine never calls this on its own behalf.
func (p *Pool) Purge(unreachable map[Hash]struct{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	purged := 0
	for h := range unreachable {
		if b, ok := p.blobs[h]; ok && b.refcount <= 0 {
			delete(p.blobs, h)
			purged++
		}
	}
	return purged
}

// Hashes returns every hash currently stored in the pool, in no
// particular order. Used by Purge callers to compute the unreachable
// set and by the Serialiser to walk the blob section.
func (p *Pool) Hashes() []Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Hash, 0, len(p.blobs))
	for h := range p.blobs {
		out = append(out, h)
	}
	return out
}
