// Command volctl is the reference command-line client for a voltree
// volume: it opens (or creates) a volume file, runs one Operations API
// call, and persists the result, the way bd's cmd/bd wires one cobra
// command per storage operation over a single SQLite-backed Storage.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/config"
	"github.com/ghartrid/voltree/internal/diag"
)

// Version is the current version of volctl (overridden by ldflags at
// build time).
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "volctl",
	Short: "Inspect and mutate a voltree volume",
	Long: `volctl is a command-line client for a voltree volume: a
content-addressed, copy-on-write filesystem engine with branches,
snapshots, quotas, and a policy-gated Operations API.

Every subcommand opens the volume named by --volume (default: the
configured "volume" setting, "volume.vt"), applies one Operations API
call, and, if that call mutates state, writes the volume back out, the
same way a stateless RPC client would.`,
	SilenceUsage: true,
}

var (
	volumePath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&volumePath, "volume", "", "path to the volume file (defaults to config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "accepted but has no effect: every command prints plain text")
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "volctl: config: %v\n", err)
	}
	if err := diag.Initialize(diag.Options{
		Dir:        config.GetString("log.dir"),
		MaxSizeMB:  int(config.GetInt64("log.max-size-mb")),
		MaxBackups: int(config.GetInt64("log.max-backups")),
		MaxAgeDays: int(config.GetInt64("log.max-age-days")),
		Verbose:    config.GetBool("policy.verbose"),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "volctl: diag: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
