// Package voltree provides a minimal public API for embedding a
// volume engine in another Go program.
//
// Most callers should use the Operations API directly via
// internal/ops.Facade through this package's re-exports; cmd/volctl
// is the reference command-line client built the same way.
package voltree

import (
	"time"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/ops"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
	"github.com/ghartrid/voltree/internal/serial"
)

// Engine is the Operations API façade: the sole entry point for
// mutating or reading a volume (spec.md §4.8).
type Engine = ops.Facade

// ViewID identifies one frozen or working view of the namespace tree.
type ViewID = namespace.ViewID

// AccessContext is the (uid, gid, capabilities) triple every call is
// checked against.
type AccessContext = access.Context

// QuotaLimits bounds a volume or branch's blob bytes, refs, and views.
type QuotaLimits = quota.Limits

// PolicyConfig holds the Policy Engine's classification-tightening
// flags.
type PolicyConfig = policy.Config

// New creates an Engine over a fresh, empty volume.
func New(limits QuotaLimits, cfg PolicyConfig, now time.Time) *Engine {
	return ops.New(limits, cfg, now)
}

// Load reconstructs an Engine from a previously saved volume.
func Load(dev serial.Device) (*Engine, error) {
	return ops.Load(dev)
}

// DefaultAccess returns the unprivileged (uid 0, gid 0, CapUser)
// access context new engines start with.
func DefaultAccess() AccessContext {
	return access.Default()
}
