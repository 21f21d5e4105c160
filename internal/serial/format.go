// Package serial also defines the Serialiser's on-disk layout: a
// fixed header (magic, version, flags, body length, checksum) followed
// by five fixed-order sections covering every piece of Engine state
// (spec.md §4.7). The fixed-width header style is grounded on
// zchee-go-qcow2/header.go's byte-offset struct layout; the checksum
// is a stdlib hash/crc32 since no pack example carries a dedicated
// checksum library and CRC-32 is the standard choice for this kind of
// whole-body integrity check.
package serial

import (
	"fmt"
	"hash/crc32"

	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/blobpool"
	"github.com/ghartrid/voltree/internal/branch"
	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
)

// magic identifies a voltree volume file. version is bumped whenever
// the body layout changes incompatibly.
var magic = [8]byte{'V', 'O', 'L', 'T', 'R', 'E', 'E', '1'}

const formatVersion uint32 = 2

// State bundles every piece of Engine state the Serialiser persists:
// the blob pool, the view graph, the branch registry, the quota
// accountant, and the policy engine (spec.md §4.7).
type State struct {
	Pool   *blobpool.Pool
	Graph  *namespace.Graph
	Branch *branch.Registry
	Quota  *quota.Accountant
	Policy *policy.Engine
}

// Save writes state's full contents to dev as one checksummed body
// behind a fixed header, then flushes dev (spec.md §4.7, §5: the
// caller holds dev's exclusive lock for the duration of this call).
func Save(dev Device, state *State) error {
	body := encodeBody(state)

	w := &writer{}
	w.fixed(magic[:])
	w.u32(formatVersion)
	w.u32(0) // flags, reserved
	w.u64(uint64(len(body)))
	w.u32(crc32.ChecksumIEEE(body))
	header := w.buf.Bytes()

	if _, err := dev.WriteAt(header, 0); err != nil {
		return fmt.Errorf("serial: writing header: %w", err)
	}
	if _, err := dev.WriteAt(body, int64(len(header))); err != nil {
		return fmt.Errorf("serial: writing body: %w", err)
	}
	return dev.Flush()
}

// headerSize is the fixed header's encoded length: 8 (magic) + 4
// (version) + 4 (flags) + 8 (body length) + 4 (checksum).
const headerSize = 8 + 4 + 4 + 8 + 4

// Load reads and validates dev's header, then decodes its body into a
// fresh State (spec.md §4.7). A magic mismatch, version mismatch, or
// checksum mismatch fails with apierr.ErrFormat.
func Load(dev Device) (*State, error) {
	head := make([]byte, headerSize)
	if _, err := dev.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", apierr.ErrFormat, err)
	}
	r := newReader(head)

	gotMagic, err := r.fixedN(8)
	if err != nil {
		return nil, err
	}
	for i := range magic {
		if gotMagic[i] != magic[i] {
			return nil, fmt.Errorf("%w: bad magic", apierr.ErrFormat)
		}
	}
	version, err := r.u32()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apierr.ErrFormat, version)
	}
	if _, err := r.u32(); err != nil { // flags, unused
		return nil, err
	}
	bodyLen, err := r.u64()
	if err != nil {
		return nil, err
	}
	wantChecksum, err := r.u32()
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := dev.ReadAt(body, headerSize); err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", apierr.ErrFormat, err)
	}
	if crc32.ChecksumIEEE(body) != wantChecksum {
		return nil, fmt.Errorf("%w: checksum mismatch", apierr.ErrFormat)
	}

	return decodeBody(body)
}

func encodeBody(state *State) []byte {
	w := &writer{}
	encodeBlobs(w, state.Pool)
	encodeViews(w, state.Graph)
	encodeBranches(w, state.Branch)
	encodeQuota(w, state.Quota)
	encodePolicy(w, state.Policy)
	return w.buf.Bytes()
}

func decodeBody(body []byte) (*State, error) {
	r := newReader(body)

	pool, err := decodeBlobs(r)
	if err != nil {
		return nil, err
	}
	views, nextEntryID, err := decodeViews(r)
	if err != nil {
		return nil, err
	}
	graph := namespace.Restore(views, nextEntryID)

	branches, current, err := decodeBranches(r)
	if err != nil {
		return nil, err
	}
	registry := branch.Restore(graph, branches, current)

	volume, branchQuotas, err := decodeQuota(r)
	if err != nil {
		return nil, err
	}
	accountant := quota.Restore(volume, branchQuotas)

	cfg, entries, nextSeq, counters, err := decodePolicy(r)
	if err != nil {
		return nil, err
	}
	engine := policy.Restore(cfg, entries, nextSeq, counters)

	return &State{Pool: pool, Graph: graph, Branch: registry, Quota: accountant, Policy: engine}, nil
}

// --- Blob section ---

func encodeBlobs(w *writer, pool *blobpool.Pool) {
	hashes := pool.Hashes()
	w.u32(uint32(len(hashes)))
	for _, h := range hashes {
		w.fixed(h[:])
		w.i64(pool.Refcount(h))
		data, err := pool.Get(h)
		if err != nil {
			// Refcount and Hashes are read under the same pool lock a
			// caller never mutates concurrently with Save, so Get
			// cannot fail here; a failure means the pool was corrupted
			// in a way this package cannot recover from.
			panic(fmt.Sprintf("serial: blob %s vanished mid-save: %v", h, err))
		}
		w.bytes(data)
	}
}

func decodeBlobs(r *reader) (*blobpool.Pool, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	pool := blobpool.New()
	for i := uint32(0); i < count; i++ {
		hashBytes, err := r.fixedN(32)
		if err != nil {
			return nil, err
		}
		refcount, err := r.i64()
		if err != nil {
			return nil, err
		}
		data, err := r.bytesN()
		if err != nil {
			return nil, err
		}
		var h blobpool.Hash
		copy(h[:], hashBytes)
		got := pool.PutNoRetain(data, refcount)
		if got != h {
			return nil, fmt.Errorf("%w: blob hash mismatch on load", apierr.ErrFormat)
		}
	}
	return pool, nil
}

// --- View section (entries live inside each view's change-set) ---

func encodeViews(w *writer, g *namespace.Graph) {
	views := g.Views()
	w.u32(uint32(len(views)))
	w.u64(uint64(g.NextEntryID()))
	for _, v := range views {
		w.u64(uint64(v.ID))
		w.bool(v.HasParent)
		w.u64(uint64(v.Parent))
		w.bool(v.HasParent2)
		w.u64(uint64(v.Parent2))
		w.str(v.Label)
		w.time(v.CreatedAt)
		w.bool(v.Frozen)

		w.u32(uint32(len(v.Change.Entries)))
		for id, e := range v.Change.Entries {
			w.u64(uint64(id))
			encodeEntry(w, e)
		}
		var hiddenIDs []namespace.EntryID
		for id, hidden := range v.Change.Hidden {
			if hidden {
				hiddenIDs = append(hiddenIDs, id)
			}
		}
		w.u32(uint32(len(hiddenIDs)))
		for _, id := range hiddenIDs {
			w.u64(uint64(id))
		}
	}
}

func encodeEntry(w *writer, e *namespace.Entry) {
	w.str(e.Name)
	w.u8(uint8(e.Kind))
	w.u32(e.Owner)
	w.u32(uint32(e.Perm))
	w.time(e.CreatedAt)
	w.i64(int64(e.LinkCount))
	w.bool(e.Hidden)
	w.fixed(e.BlobHash[:])
	w.u32(uint32(len(e.Children)))
	for _, c := range e.Children {
		w.u64(uint64(c))
	}
	w.str(e.Target)
}

func decodeViews(r *reader) ([]*namespace.View, namespace.EntryID, error) {
	count, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	nextEntryRaw, err := r.u64()
	if err != nil {
		return nil, 0, err
	}

	out := make([]*namespace.View, 0, count)
	for i := uint32(0); i < count; i++ {
		idRaw, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		hasParent, err := r.boolean()
		if err != nil {
			return nil, 0, err
		}
		parentRaw, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		hasParent2, err := r.boolean()
		if err != nil {
			return nil, 0, err
		}
		parent2Raw, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		label, err := r.str()
		if err != nil {
			return nil, 0, err
		}
		createdAt, err := r.when()
		if err != nil {
			return nil, 0, err
		}
		frozen, err := r.boolean()
		if err != nil {
			return nil, 0, err
		}

		entryCount, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		entries := make(map[namespace.EntryID]*namespace.Entry, entryCount)
		for j := uint32(0); j < entryCount; j++ {
			idRaw, err := r.u64()
			if err != nil {
				return nil, 0, err
			}
			e, err := decodeEntry(r)
			if err != nil {
				return nil, 0, err
			}
			e.ID = namespace.EntryID(idRaw)
			entries[e.ID] = e
		}

		hiddenCount, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		hidden := make(map[namespace.EntryID]bool, hiddenCount)
		for j := uint32(0); j < hiddenCount; j++ {
			idRaw, err := r.u64()
			if err != nil {
				return nil, 0, err
			}
			hidden[namespace.EntryID(idRaw)] = true
		}

		out = append(out, &namespace.View{
			ID:         namespace.ViewID(idRaw),
			Parent:     namespace.ViewID(parentRaw),
			HasParent:  hasParent,
			Parent2:    namespace.ViewID(parent2Raw),
			HasParent2: hasParent2,
			Label:      label,
			CreatedAt:  createdAt,
			Frozen:     frozen,
			Change:     &namespace.ChangeSet{Entries: entries, Hidden: hidden},
		})
	}
	return out, namespace.EntryID(nextEntryRaw), nil
}

func decodeEntry(r *reader) (*namespace.Entry, error) {
	name, err := r.str()
	if err != nil {
		return nil, err
	}
	kind, err := r.u8()
	if err != nil {
		return nil, err
	}
	owner, err := r.u32()
	if err != nil {
		return nil, err
	}
	perm, err := r.u32()
	if err != nil {
		return nil, err
	}
	createdAt, err := r.when()
	if err != nil {
		return nil, err
	}
	linkCount, err := r.i64()
	if err != nil {
		return nil, err
	}
	hidden, err := r.boolean()
	if err != nil {
		return nil, err
	}
	hashBytes, err := r.fixedN(32)
	if err != nil {
		return nil, err
	}
	childCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	children := make([]namespace.EntryID, childCount)
	for i := uint32(0); i < childCount; i++ {
		c, err := r.u64()
		if err != nil {
			return nil, err
		}
		children[i] = namespace.EntryID(c)
	}
	target, err := r.str()
	if err != nil {
		return nil, err
	}

	var hash blobpool.Hash
	copy(hash[:], hashBytes)

	return &namespace.Entry{
		Name:      name,
		Kind:      namespace.Kind(kind),
		Owner:     owner,
		Perm:      uint16(perm),
		CreatedAt: createdAt,
		LinkCount: int(linkCount),
		Hidden:    hidden,
		BlobHash:  hash,
		Children:  children,
		Target:    target,
	}, nil
}

// --- Branch section ---

func encodeBranches(w *writer, r *branch.Registry) {
	w.u64(uint64(r.Current().ID))
	branches := r.List()
	w.u32(uint32(len(branches)))
	for _, b := range branches {
		w.u64(uint64(b.ID))
		w.str(b.Name)
		w.u64(uint64(b.BaseView))
		w.u64(uint64(b.HeadView))
		w.time(b.CreatedAt)
	}
}

func decodeBranches(r *reader) ([]*branch.Branch, branch.BranchID, error) {
	currentRaw, err := r.u64()
	if err != nil {
		return nil, 0, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	out := make([]*branch.Branch, 0, count)
	for i := uint32(0); i < count; i++ {
		idRaw, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		name, err := r.str()
		if err != nil {
			return nil, 0, err
		}
		baseView, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		headView, err := r.u64()
		if err != nil {
			return nil, 0, err
		}
		createdAt, err := r.when()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &branch.Branch{
			ID:        branch.BranchID(idRaw),
			Name:      name,
			BaseView:  namespace.ViewID(baseView),
			HeadView:  namespace.ViewID(headView),
			CreatedAt: createdAt,
		})
	}
	return out, branch.BranchID(currentRaw), nil
}

// --- Quota section ---

func encodeQuotaRecord(w *writer, rec quota.Record) {
	w.i64(rec.Limits.MaxBytes)
	w.i64(rec.Limits.MaxRefs)
	w.i64(rec.Limits.MaxViews)
	w.i64(rec.Usage.Bytes)
	w.i64(rec.Usage.Refs)
	w.i64(rec.Usage.Views)
}

func decodeQuotaRecord(r *reader) (quota.Record, error) {
	var rec quota.Record
	var err error
	if rec.Limits.MaxBytes, err = r.i64(); err != nil {
		return rec, err
	}
	if rec.Limits.MaxRefs, err = r.i64(); err != nil {
		return rec, err
	}
	if rec.Limits.MaxViews, err = r.i64(); err != nil {
		return rec, err
	}
	if rec.Usage.Bytes, err = r.i64(); err != nil {
		return rec, err
	}
	if rec.Usage.Refs, err = r.i64(); err != nil {
		return rec, err
	}
	if rec.Usage.Views, err = r.i64(); err != nil {
		return rec, err
	}
	return rec, nil
}

func encodeQuota(w *writer, a *quota.Accountant) {
	encodeQuotaRecord(w, a.VolumeRecord())
	ids := a.BranchIDs()
	w.u32(uint32(len(ids)))
	for _, id := range ids {
		w.u64(id)
		encodeQuotaRecord(w, a.BranchRecord(id))
	}
}

func decodeQuota(r *reader) (quota.Record, map[uint64]quota.Record, error) {
	volume, err := decodeQuotaRecord(r)
	if err != nil {
		return volume, nil, err
	}
	count, err := r.u32()
	if err != nil {
		return volume, nil, err
	}
	branches := make(map[uint64]quota.Record, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.u64()
		if err != nil {
			return volume, nil, err
		}
		rec, err := decodeQuotaRecord(r)
		if err != nil {
			return volume, nil, err
		}
		branches[id] = rec
	}
	return volume, branches, nil
}

// --- Policy & audit section ---

func encodePolicy(w *writer, e *policy.Engine) {
	cfg := e.Config()
	w.bool(cfg.Strict)
	w.bool(cfg.AuditAll)
	w.bool(cfg.Verbose)

	w.u64(e.NextSequence())

	counters := e.Counters()
	w.u64(counters.Checks)
	w.u64(counters.Allowed)
	w.u64(counters.Denied)
	w.u64(counters.Transformed)
	w.u64(counters.Audited)
	w.u32(uint32(len(counters.ByDomain)))
	for domain, n := range counters.ByDomain {
		w.u8(uint8(domain))
		w.u64(n)
	}

	entries := e.Entries()
	w.u32(uint32(len(entries)))
	for _, entry := range entries {
		w.u64(entry.Sequence)
		w.time(entry.Timestamp)
		w.u8(uint8(entry.Kind))
		w.u8(uint8(entry.Verdict))
		w.u32(entry.Principal)
		w.u8(uint8(entry.Domain))
		w.str(entry.Arg1)
		w.str(entry.Arg2)
		w.str(entry.Reason)
	}
}

func decodePolicy(r *reader) (policy.Config, []policy.AuditEntry, uint64, policy.Counters, error) {
	var cfg policy.Config
	var err error
	if cfg.Strict, err = r.boolean(); err != nil {
		return cfg, nil, 0, policy.Counters{}, err
	}
	if cfg.AuditAll, err = r.boolean(); err != nil {
		return cfg, nil, 0, policy.Counters{}, err
	}
	if cfg.Verbose, err = r.boolean(); err != nil {
		return cfg, nil, 0, policy.Counters{}, err
	}

	nextSeq, err := r.u64()
	if err != nil {
		return cfg, nil, 0, policy.Counters{}, err
	}

	counters := policy.Counters{ByDomain: make(map[policy.Domain]uint64)}
	if counters.Checks, err = r.u64(); err != nil {
		return cfg, nil, 0, counters, err
	}
	if counters.Allowed, err = r.u64(); err != nil {
		return cfg, nil, 0, counters, err
	}
	if counters.Denied, err = r.u64(); err != nil {
		return cfg, nil, 0, counters, err
	}
	if counters.Transformed, err = r.u64(); err != nil {
		return cfg, nil, 0, counters, err
	}
	if counters.Audited, err = r.u64(); err != nil {
		return cfg, nil, 0, counters, err
	}
	domainCount, err := r.u32()
	if err != nil {
		return cfg, nil, 0, counters, err
	}
	for i := uint32(0); i < domainCount; i++ {
		domainRaw, err := r.u8()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		n, err := r.u64()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		counters.ByDomain[policy.Domain(domainRaw)] = n
	}

	entryCount, err := r.u32()
	if err != nil {
		return cfg, nil, 0, counters, err
	}
	entries := make([]policy.AuditEntry, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		seq, err := r.u64()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		ts, err := r.when()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		kind, err := r.u8()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		verdict, err := r.u8()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		principal, err := r.u32()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		domain, err := r.u8()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		arg1, err := r.str()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		arg2, err := r.str()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		reason, err := r.str()
		if err != nil {
			return cfg, nil, 0, counters, err
		}
		entries[i] = policy.AuditEntry{
			Sequence:  seq,
			Timestamp: ts,
			Kind:      policy.Kind(kind),
			Verdict:   policy.Verdict(verdict),
			Principal: principal,
			Domain:    policy.Domain(domain),
			Arg1:      arg1,
			Arg2:      arg2,
			Reason:    reason,
		}
	}

	return cfg, entries, nextSeq, counters, nil
}
