// Package diag is the Engine's diagnostics sink: a rotating log file
// for operator-facing trace output, independent of the audit ring the
// Policy Engine keeps for policy decisions (internal/policy). It is
// grounded on the teacher's internal/audit append-only file pattern
// (Path/EnsureFile under a dotfile directory), adapted to a rotating
// writer since process diagnostics, unlike an audit trail, are not
// meant to grow forever.
package diag

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DirName is the dotfile directory volctl looks for a volume's
// diagnostics log under, mirroring the teacher's ".beads" convention.
const DirName = ".voltree"

// FileName is the diagnostics log's file name within DirName.
const FileName = "voltree.log"

var (
	mu      sync.Mutex
	logger  *log.Logger
	verbose bool
)

// Options configures the rotating log file (spec.md ambient logging).
// A size/backup/age bound of zero or less falls back to 50 MB, 5
// backups and 30 days respectively.
type Options struct {
	Dir        string // directory to write FileName under; empty logs to stderr instead
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Verbose    bool // let Debugf calls through to the log; otherwise they are dropped
}

// Initialize installs the process-wide diagnostics logger. Safe to
// call more than once; the last call wins.
func Initialize(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	verbose = opts.Verbose

	if opts.Dir == "" {
		logger = log.New(os.Stderr, "", log.LstdFlags)
		return nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("creating diagnostics directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, FileName),
		MaxSize:    maxOr(opts.MaxSizeMB, 50),
		MaxBackups: maxOr(opts.MaxBackups, 5),
		MaxAge:     maxOr(opts.MaxAgeDays, 30),
		Compress:   true,
	}
	logger = log.New(writer, "", log.LstdFlags|log.Lmicroseconds)
	return nil
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Logf writes a line to the diagnostics log unconditionally.
func Logf(format string, args ...interface{}) {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return
	}
	l.Printf(format, args...)
}

// Debugf writes a line to the diagnostics log only when Verbose was
// set on Initialize (spec.md §4.5 Config.Verbose: "echo decisions to
// a diagnostics sink").
func Debugf(format string, args ...interface{}) {
	mu.Lock()
	v, l := verbose, logger
	mu.Unlock()
	if !v || l == nil {
		return
	}
	l.Printf(format, args...)
}
