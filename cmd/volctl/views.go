package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/namespace"
	"github.com/ghartrid/voltree/internal/uirender"
)

func init() {
	rootCmd.AddCommand(viewListCmd, viewSwitchCmd, snapshotCmd, viewDiffCmd)
}

var viewListCmd = &cobra.Command{
	Use:   "view-list",
	Short: "List every view id in creation order (spec.md view-list)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		views := f.ViewList()
		if err := dev.Close(); err != nil {
			return err
		}
		for _, v := range views {
			fmt.Println(uint64(v))
		}
		return nil
	}),
}

var viewSwitchCmd = &cobra.Command{
	Use:   "view-switch <view-id>",
	Short: "Point subsequent reads at view instead of the branch head (spec.md view-switch)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing view id %q: %w", args[0], err)
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.ViewSwitch(namespace.ViewID(id)); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <label>",
	Short: "Freeze the current branch head and fork a new one (spec.md snapshot)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		view, err := f.Snapshot(args[0], now())
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := saveAndClose(f, dev); err != nil {
			return err
		}
		fmt.Println(uint64(view))
		return nil
	}),
}

var viewDiffCmd = &cobra.Command{
	Use:   "view-diff <a> <b>",
	Short: "List paths that changed between two views (spec.md view-diff)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		a, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing view id %q: %w", args[0], err)
		}
		b, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing view id %q: %w", args[1], err)
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		diff, err := f.ViewDiff(namespace.ViewID(a), namespace.ViewID(b))
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		rows := make([]uirender.Row, len(diff))
		for i, d := range diff {
			class := uirender.ClassNeutral
			if d.Kind == namespace.ChangeHidden {
				class = uirender.ClassWarn
			} else if d.Kind == namespace.ChangeAdded {
				class = uirender.ClassGood
			}
			rows[i] = uirender.Row{Cells: []string{d.Path, d.Kind.String()}, Class: class}
		}
		fmt.Println(uirender.NewListingTable([]string{"PATH", "CHANGE"}, rows))
		return nil
	}),
}
