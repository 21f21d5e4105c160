package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/access"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
)

func init() {
	rootCmd.AddCommand(contextGetCmd, contextSetCmd,
		quotaSetCmd, quotaGetCmd, quotaUsageCmd,
		policyFlagsGetCmd, policyFlagsSetCmd, policyCountersCmd,
		auditCountCmd, auditGetCmd, auditRecordCmd)
}

var contextGetCmd = &cobra.Command{
	Use:   "context-get",
	Short: "Print the access context every call is checked against (spec.md set-context/get-context)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		ctx := f.GetContext()
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("uid=%d gid=%d caps=%x\n", ctx.UID, ctx.GID, ctx.Caps)
		return nil
	}),
}

var (
	setUID  uint32
	setGID  uint32
	setCaps uint32
)

var contextSetCmd = &cobra.Command{
	Use:   "context-set",
	Short: "Replace the access context (spec.md set-context/get-context)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		f.SetContext(access.Context{UID: setUID, GID: setGID, Caps: access.CapSet(setCaps)})
		return saveAndClose(f, dev)
	}),
}

func init() {
	contextSetCmd.Flags().Uint32Var(&setUID, "uid", 0, "principal uid")
	contextSetCmd.Flags().Uint32Var(&setGID, "gid", 0, "principal gid")
	contextSetCmd.Flags().Uint32Var(&setCaps, "caps", 0, "capability bitmask")
}

var (
	quotaMaxBytes int64
	quotaMaxRefs  int64
	quotaMaxViews int64
)

var quotaSetCmd = &cobra.Command{
	Use:   "quota-set <scope>",
	Short: `Install limits for "volume" or a branch id (spec.md quota-set)`,
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		limits := quota.Limits{MaxBytes: quotaMaxBytes, MaxRefs: quotaMaxRefs, MaxViews: quotaMaxViews}
		if err := f.QuotaSet(args[0], limits); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

func init() {
	quotaSetCmd.Flags().Int64Var(&quotaMaxBytes, "max-bytes", 0, "maximum blob-pool bytes (0 = unlimited)")
	quotaSetCmd.Flags().Int64Var(&quotaMaxRefs, "max-refs", 0, "maximum live refs (0 = unlimited)")
	quotaSetCmd.Flags().Int64Var(&quotaMaxViews, "max-views", 0, "maximum live views (0 = unlimited)")
}

var quotaGetCmd = &cobra.Command{
	Use:   "quota-get <scope>",
	Short: `Print limits and usage for "volume" or a branch id (spec.md quota-get)`,
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		rec, err := f.QuotaGet(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("limits: bytes=%d refs=%d views=%d\n", rec.Limits.MaxBytes, rec.Limits.MaxRefs, rec.Limits.MaxViews)
		fmt.Printf("usage:  bytes=%d refs=%d views=%d\n", rec.Usage.Bytes, rec.Usage.Refs, rec.Usage.Views)
		return nil
	}),
}

var quotaUsageCmd = &cobra.Command{
	Use:   "quota-usage <scope>",
	Short: `Print running usage totals for "volume" or a branch id (spec.md quota-usage)`,
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		usage, err := f.QuotaUsage(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("bytes=%d refs=%d views=%d\n", usage.Bytes, usage.Refs, usage.Views)
		return nil
	}),
}

var policyFlagsGetCmd = &cobra.Command{
	Use:   "policy-flags-get",
	Short: "Print the Policy Engine's classification flags (spec.md policy-flags-get/set)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		cfg := f.PolicyFlagsGet()
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("strict=%v audit-all=%v verbose=%v\n", cfg.Strict, cfg.AuditAll, cfg.Verbose)
		return nil
	}),
}

var (
	flagStrict   bool
	flagAuditAll bool
	flagVerbose  bool
)

var policyFlagsSetCmd = &cobra.Command{
	Use:   "policy-flags-set",
	Short: "Replace the Policy Engine's classification flags (spec.md policy-flags-get/set)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		f.PolicyFlagsSet(policy.Config{Strict: flagStrict, AuditAll: flagAuditAll, Verbose: flagVerbose})
		return saveAndClose(f, dev)
	}),
}

func init() {
	policyFlagsSetCmd.Flags().BoolVar(&flagStrict, "strict", false, "tighten ambiguous cases to deny")
	policyFlagsSetCmd.Flags().BoolVar(&flagAuditAll, "audit-all", false, "log allow-decisions too")
	policyFlagsSetCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "stored policy flag; decisions are not echoed")
}

var policyCountersCmd = &cobra.Command{
	Use:   "policy-counters",
	Short: "Print the Policy Engine's running totals (spec.md policy-counters)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		c := f.PolicyCounters()
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("checks=%d allowed=%d denied=%d transformed=%d audited=%d\n",
			c.Checks, c.Allowed, c.Denied, c.Transformed, c.Audited)
		for domain, count := range c.ByDomain {
			fmt.Printf("  domain=%d violations=%d\n", domain, count)
		}
		return nil
	}),
}

var auditCountCmd = &cobra.Command{
	Use:   "audit-count",
	Short: "Print the number of live entries in the audit ring (spec.md audit-count)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		n := f.AuditCount()
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	}),
}

var auditGetCmd = &cobra.Command{
	Use:   "audit-get <index>",
	Short: "Print the audit entry at index, 0 being most recent (spec.md audit-get)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("parsing index %q: %w", args[0], err)
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		entry, err := f.AuditGet(idx)
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("seq=%d time=%s kind=%s verdict=%s principal=%d arg1=%q arg2=%q reason=%q\n",
			entry.Sequence, entry.Timestamp, entry.Kind, entry.Verdict, entry.Principal, entry.Arg1, entry.Arg2, entry.Reason)
		return nil
	}),
}

var auditKindFlag string
var auditVerdictFlag string

var auditRecordCmd = &cobra.Command{
	Use:   "audit-record <arg1> <arg2> <reason>",
	Short: "Append a manually-classified audit entry (spec.md audit-record)",
	Args:  cobra.ExactArgs(3),
	Run: withVolume(func(args []string) error {
		kind, err := parseKind(auditKindFlag)
		if err != nil {
			return err
		}
		verdict, err := parseVerdict(auditVerdictFlag)
		if err != nil {
			return err
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		f.AuditRecord(kind, verdict, args[0], args[1], args[2], now())
		return saveAndClose(f, dev)
	}),
}

func init() {
	auditRecordCmd.Flags().StringVar(&auditKindFlag, "kind", "resource-exhaust", "policy kind (e.g. fs-delete, fs-quota-exceeded, resource-exhaust)")
	auditRecordCmd.Flags().StringVar(&auditVerdictFlag, "verdict", "audit", "verdict (allow, deny, transform, audit)")
}

func parseKind(s string) (policy.Kind, error) {
	kinds := []policy.Kind{
		policy.FSDelete, policy.FSTruncate, policy.FSOverwrite, policy.FSHide,
		policy.FSPermDenied, policy.FSQuotaExceeded, policy.MemFree, policy.MemOverwrite,
		policy.ProcTerminate, policy.ProcExit, policy.ResourceExhaust,
	}
	for _, k := range kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown policy kind %q", s)
}

func parseVerdict(s string) (policy.Verdict, error) {
	verdicts := []policy.Verdict{policy.Allow, policy.Deny, policy.Transform, policy.Audit}
	for _, v := range verdicts {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", s)
}
