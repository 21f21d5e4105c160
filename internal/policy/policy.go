// Package policy implements the Engine's Policy Engine: a closed set
// of policy kinds mapped to verdicts, and the fixed-capacity append-
// only audit ring every check records into (spec.md §4.5). It is
// grounded on the teacher's append-only JSONL audit log
// (internal/audit/audit.go), adapted from a file-backed log to an
// in-memory ring since the Engine has no on-disk presence until the
// Serialiser runs.
package policy

import (
	"fmt"
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/apierr"
)

// Kind is the closed set of policy classifications a mutation can be
// keyed by (spec.md §3.5).
type Kind int

const (
	FSDelete Kind = iota
	FSTruncate
	FSOverwrite
	FSHide
	FSPermDenied
	FSQuotaExceeded
	MemFree
	MemOverwrite
	ProcTerminate
	ProcExit
	ResourceExhaust
)

func (k Kind) String() string {
	switch k {
	case FSDelete:
		return "fs-delete"
	case FSTruncate:
		return "fs-truncate"
	case FSOverwrite:
		return "fs-overwrite"
	case FSHide:
		return "fs-hide"
	case FSPermDenied:
		return "fs-perm-denied"
	case FSQuotaExceeded:
		return "fs-quota-exceeded"
	case MemFree:
		return "mem-free"
	case MemOverwrite:
		return "mem-overwrite"
	case ProcTerminate:
		return "proc-terminate"
	case ProcExit:
		return "proc-exit"
	case ResourceExhaust:
		return "resource-exhaust"
	default:
		return "unknown"
	}
}

// Domain groups policy kinds for the per-domain violation counters
// (spec.md §4.5 "per-domain violation totals").
type Domain int

const (
	DomainFS Domain = iota
	DomainMem
	DomainProc
	DomainResource
)

func (k Kind) Domain() Domain {
	switch k {
	case FSDelete, FSTruncate, FSOverwrite, FSHide, FSPermDenied, FSQuotaExceeded:
		return DomainFS
	case MemFree, MemOverwrite:
		return DomainMem
	case ProcTerminate, ProcExit:
		return DomainProc
	default:
		return DomainResource
	}
}

// Verdict is the closed set of classification outcomes (spec.md
// §3.5).
type Verdict int

const (
	Allow Verdict = iota
	Deny
	Transform
	Audit
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Transform:
		return "transform"
	case Audit:
		return "audit"
	default:
		return "unknown"
	}
}

// AuditCapacity is the ring's fixed capacity, above the minimum of 128
// (spec.md §4.5 "capacity >= 128").
const AuditCapacity = 256

// MaxReasonBytes bounds the audit entry's reason string (spec.md
// §4.5 "bounded reason (<= 64 bytes)").
const MaxReasonBytes = 64

// AuditEntry is one record in the audit ring (spec.md §3.5).
type AuditEntry struct {
	Sequence  uint64
	Timestamp time.Time
	Kind      Kind
	Verdict   Verdict
	Principal uint32
	Domain    Domain
	Arg1      string
	Arg2      string
	Reason    string
}

// Config holds the classification-tightening flags (spec.md §4.5).
type Config struct {
	Strict   bool // tighten ambiguous cases to deny
	AuditAll bool // log allow-decisions too
	Verbose  bool // stored and persisted only; Check does not read it and echoes nothing
}

// Counters tracks the running totals the Engine exposes for
// diagnostics (spec.md §4.5 "checks, allowed, denied, transformed").
type Counters struct {
	Checks      uint64
	Allowed     uint64
	Denied      uint64
	Transformed uint64
	Audited     uint64
	ByDomain    map[Domain]uint64 // violations (deny verdicts) per domain
}

// Engine is the Policy Engine: classification plus the audit ring
// (spec.md §4.5). A zero Engine is not usable; create one with New.
type Engine struct {
	cfg      Config
	counters Counters
	ring     []AuditEntry
	ringHead int // index the next entry will be written to
	ringLen  int // number of live entries, capped at AuditCapacity
	nextSeq  uint64
}

// New creates a Policy Engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		counters: Counters{ByDomain: make(map[Domain]uint64)},
		ring:     make([]AuditEntry, AuditCapacity),
	}
}

// classify maps a policy kind to its verdict (spec.md §4.5 "the
// mapping (core)"), consulting ctx only for the capability-gated
// kinds.
func (e *Engine) classify(kind Kind, ctx access.Context) Verdict {
	switch kind {
	case FSDelete:
		return Transform
	case FSTruncate:
		return Deny
	case FSOverwrite:
		return Audit
	case FSHide:
		return Allow
	case FSPermDenied, FSQuotaExceeded:
		return Deny
	case MemFree:
		if ctx.Caps.HasAny(access.CapFreeMemory | access.CapKernel) {
			return Allow
		}
		return Deny
	case MemOverwrite:
		return Audit
	case ProcTerminate:
		if e.cfg.Strict {
			return Deny
		}
		if ctx.Caps.Has(access.CapKernel) {
			return Audit
		}
		return Deny
	case ProcExit:
		return Allow
	default:
		if e.cfg.Strict {
			return Deny
		}
		return Audit
	}
}

// Check classifies kind under ctx, records an audit entry when the
// verdict (or the audit-all flag) calls for one, and returns the
// verdict alongside an error that is non-nil only for Deny (callers
// turn that into apierr.ErrDeniedByPolicy or a more specific
// sentinel already known to them, e.g. apierr.ErrQuotaExceeded for
// fs-quota-exceeded).
func (e *Engine) Check(kind Kind, ctx access.Context, arg1, arg2, reason string, now time.Time) (Verdict, error) {
	verdict := e.classify(kind, ctx)

	e.counters.Checks++
	switch verdict {
	case Allow:
		e.counters.Allowed++
	case Deny:
		e.counters.Denied++
		e.counters.ByDomain[kind.Domain()]++
	case Transform:
		e.counters.Transformed++
	case Audit:
		e.counters.Audited++
	}

	if verdict != Allow || e.cfg.AuditAll {
		e.record(kind, verdict, ctx.UID, arg1, arg2, reason, now)
	}

	if verdict == Deny {
		return verdict, fmt.Errorf("%w: %s", apierr.ErrDeniedByPolicy, kind)
	}
	return verdict, nil
}

func truncateReason(reason string) string {
	if len(reason) <= MaxReasonBytes {
		return reason
	}
	return reason[:MaxReasonBytes]
}

func (e *Engine) record(kind Kind, verdict Verdict, principal uint32, arg1, arg2, reason string, now time.Time) {
	entry := AuditEntry{
		Sequence:  e.nextSeq,
		Timestamp: now,
		Kind:      kind,
		Verdict:   verdict,
		Principal: principal,
		Domain:    kind.Domain(),
		Arg1:      arg1,
		Arg2:      arg2,
		Reason:    truncateReason(reason),
	}
	e.nextSeq++
	e.ring[e.ringHead] = entry
	e.ringHead = (e.ringHead + 1) % AuditCapacity
	if e.ringLen < AuditCapacity {
		e.ringLen++
	}
}

// Audit returns the audit entry at index, where 0 is the most
// recently recorded entry (spec.md §4.5 "read access is by index
// with 0 = most recent").
func (e *Engine) Audit(index int) (AuditEntry, error) {
	if index < 0 || index >= e.ringLen {
		return AuditEntry{}, fmt.Errorf("%w: audit index %d", apierr.ErrInvalidArgument, index)
	}
	pos := (e.ringHead - 1 - index + AuditCapacity) % AuditCapacity
	return e.ring[pos], nil
}

// AuditLen returns the number of live entries in the ring.
func (e *Engine) AuditLen() int {
	return e.ringLen
}

// Counters returns a copy of the engine's running totals.
func (e *Engine) Counters() Counters {
	cp := e.counters
	cp.ByDomain = make(map[Domain]uint64, len(e.counters.ByDomain))
	for k, v := range e.counters.ByDomain {
		cp.ByDomain[k] = v
	}
	return cp
}

// Config returns the engine's classification configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig replaces the engine's classification configuration
// (spec.md §6.1 "policy-flags-get/set"), leaving accumulated
// counters and ring contents untouched.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cfg
}

// Record appends a manually-classified audit entry directly (spec.md
// §6.1 "audit-record(…)"), for callers outside the Operations API's
// own mutation path that still need an entry in the trail — e.g. a
// resource-exhaust condition the Engine detects outside any single
// call. It counts toward the same counters a Check of that verdict
// would.
func (e *Engine) Record(kind Kind, principal uint32, verdict Verdict, arg1, arg2, reason string, now time.Time) {
	e.counters.Checks++
	switch verdict {
	case Allow:
		e.counters.Allowed++
	case Deny:
		e.counters.Denied++
		e.counters.ByDomain[kind.Domain()]++
	case Transform:
		e.counters.Transformed++
	case Audit:
		e.counters.Audited++
	}
	e.record(kind, verdict, principal, arg1, arg2, reason, now)
}

// Entries returns every live audit entry in sequence order (oldest
// first), for the Serialiser's Save path (spec.md §4.7 "Audit
// section: ring contents in sequence order").
func (e *Engine) Entries() []AuditEntry {
	out := make([]AuditEntry, e.ringLen)
	for i := 0; i < e.ringLen; i++ {
		out[i], _ = e.Audit(e.ringLen - 1 - i)
	}
	return out
}

// NextSequence returns the sequence number the next recorded entry
// will receive.
func (e *Engine) NextSequence() uint64 {
	return e.nextSeq
}

// Restore rebuilds an Engine from previously serialised audit entries
// (oldest first, as returned by Entries), the next sequence number,
// and accumulated counters (used by the Serialiser's Load path).
func Restore(cfg Config, entries []AuditEntry, nextSeq uint64, counters Counters) *Engine {
	e := New(cfg)
	for _, entry := range entries {
		e.ring[e.ringHead] = entry
		e.ringHead = (e.ringHead + 1) % AuditCapacity
		if e.ringLen < AuditCapacity {
			e.ringLen++
		}
	}
	e.nextSeq = nextSeq
	e.counters = counters
	if e.counters.ByDomain == nil {
		e.counters.ByDomain = make(map[Domain]uint64)
	}
	return e
}
