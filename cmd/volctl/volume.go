package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ghartrid/voltree/internal/config"
	"github.com/ghartrid/voltree/internal/ops"
	"github.com/ghartrid/voltree/internal/policy"
	"github.com/ghartrid/voltree/internal/quota"
	"github.com/ghartrid/voltree/internal/serial"
)

// resolveVolumePath returns the --volume flag value, or the
// configured default (spec.md §6.1 volume-save/volume-load use a
// device and sector; volctl's device is always a single file).
func resolveVolumePath() string {
	if volumePath != "" {
		return volumePath
	}
	return config.GetString("volume")
}

// openVolume opens the volume file, creating a fresh empty engine if
// the file does not yet exist or is empty, and loading the persisted
// state otherwise. The caller must release the returned device once
// done: saveAndClose after a mutation (it saves, then closes), or
// dev.Close alone after a read-only call (it does not save).
func openVolume() (*ops.Facade, *serial.FileDevice, error) {
	path := resolveVolumePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating volume directory: %w", err)
		}
	}
	dev, err := serial.NewFileDevice(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("statting volume file: %w", err)
	}
	if info.Size() == 0 {
		f := ops.New(
			quota.Limits{
				MaxBytes: config.GetInt64("quota.max-bytes"),
				MaxRefs:  config.GetInt64("quota.max-refs"),
				MaxViews: config.GetInt64("quota.max-views"),
			},
			policy.Config{
				Strict:   config.GetBool("policy.strict"),
				AuditAll: config.GetBool("policy.audit-all"),
				Verbose:  config.GetBool("policy.verbose"),
			},
			now(),
		)
		return f, dev, nil
	}
	f, err := ops.Load(dev)
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("loading volume: %w", err)
	}
	return f, dev, nil
}

// saveAndClose persists f's full state to dev and releases the
// exclusive volume lock.
func saveAndClose(f *ops.Facade, dev *serial.FileDevice) error {
	if err := f.VolumeSave(dev); err != nil {
		_ = dev.Close()
		return fmt.Errorf("saving volume: %w", err)
	}
	return dev.Close()
}

// now returns the wall-clock time volctl stamps mutations with. A
// thin wrapper so every call site reads the same way a caller that
// threads an explicit clock through the Operations API would.
func now() time.Time {
	return time.Now().UTC()
}
