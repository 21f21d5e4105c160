package ops

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ghartrid/voltree/internal/apierr"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
)

// QuotaSet installs limits for scope, either "volume" or a branch id
// given as a decimal string (spec.md §6.1 "quota-set(scope,
// limits)").
func (f *Facade) QuotaSet(scope string, limits quota.Limits) error {
	if scope == "volume" {
		f.quota.SetVolumeLimits(limits)
		return nil
	}
	id, err := parseBranchScope(scope)
	if err != nil {
		return err
	}
	f.quota.SetBranchLimits(id, limits)
	return nil
}

// QuotaGet returns scope's limits and usage (spec.md §6.1
// "quota-get(scope)").
func (f *Facade) QuotaGet(scope string) (quota.Record, error) {
	if scope == "volume" {
		return f.quota.VolumeRecord(), nil
	}
	id, err := parseBranchScope(scope)
	if err != nil {
		return quota.Record{}, err
	}
	return f.quota.BranchRecord(id), nil
}

// QuotaUsage returns scope's running usage totals (spec.md §6.1
// "quota-usage(scope)").
func (f *Facade) QuotaUsage(scope string) (quota.Usage, error) {
	if scope == "volume" {
		return f.quota.VolumeUsage(), nil
	}
	id, err := parseBranchScope(scope)
	if err != nil {
		return quota.Usage{}, err
	}
	return f.quota.BranchUsage(id), nil
}

func parseBranchScope(scope string) (uint64, error) {
	id, err := strconv.ParseUint(scope, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: quota scope %q", apierr.ErrInvalidArgument, scope)
	}
	return id, nil
}

// PolicyFlagsGet returns the Policy Engine's classification
// configuration (spec.md §6.1 "policy-flags-get/set").
func (f *Facade) PolicyFlagsGet() policy.Config {
	return f.policy.Config()
}

// PolicyFlagsSet replaces the Policy Engine's classification
// configuration (spec.md §6.1 "policy-flags-get/set").
func (f *Facade) PolicyFlagsSet(cfg policy.Config) {
	f.policy.SetConfig(cfg)
}

// PolicyCounters returns the Policy Engine's running totals (spec.md
// §6.1 "policy-counters").
func (f *Facade) PolicyCounters() policy.Counters {
	return f.policy.Counters()
}

// AuditCount returns the number of live entries in the audit ring
// (spec.md §6.1 "audit-count").
func (f *Facade) AuditCount() int {
	return f.policy.AuditLen()
}

// AuditGet returns the audit entry at index, 0 being most recent
// (spec.md §6.1 "audit-get(index)").
func (f *Facade) AuditGet(index int) (policy.AuditEntry, error) {
	return f.policy.Audit(index)
}

// AuditRecord appends a manually-classified audit entry under the
// current access context's principal (spec.md §6.1
// "audit-record(…)").
func (f *Facade) AuditRecord(kind policy.Kind, verdict policy.Verdict, arg1, arg2, reason string, now time.Time) {
	f.policy.Record(kind, f.ctx.UID, verdict, arg1, arg2, reason, now)
}
