package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/uirender"
)

func init() {
	rootCmd.AddCommand(branchListCmd, branchCreateCmd, branchSwitchCmd, branchMergeCmd, branchDiffCmd)
}

var branchListCmd = &cobra.Command{
	Use:   "branch-list",
	Short: "List every branch (spec.md branch-list)",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		branches := f.BranchList()
		if err := dev.Close(); err != nil {
			return err
		}
		rows := make([]uirender.Row, len(branches))
		for i, b := range branches {
			rows[i] = uirender.Row{Cells: []string{b.Name, strconv.FormatUint(uint64(b.BaseView), 10), strconv.FormatUint(uint64(b.HeadView), 10)}}
		}
		fmt.Println(uirender.NewListingTable([]string{"NAME", "BASE", "HEAD"}, rows))
		return nil
	}),
}

var branchCreateCmd = &cobra.Command{
	Use:   "branch-create <name>",
	Short: "Fork a branch off the current branch's head (spec.md branch-create)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if _, err := f.BranchCreate(args[0], now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var branchSwitchCmd = &cobra.Command{
	Use:   "branch-switch <name>",
	Short: "Move the current-branch cursor (spec.md branch-switch)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.BranchSwitch(args[0]); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var branchMergeCmd = &cobra.Command{
	Use:   "branch-merge <source> <label>",
	Short: "Three-way merge source onto the current branch (spec.md branch-merge)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		_, conflicts, err := f.BranchMerge(args[0], args[1], now())
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := saveAndClose(f, dev); err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println(uirender.Hint("merged cleanly"))
			return nil
		}
		var md strings.Builder
		md.WriteString("## conflicts\n\n")
		for _, p := range conflicts {
			fmt.Fprintf(&md, "- `%s`\n", p)
		}
		fmt.Print(uirender.RenderMarkdown(md.String()))
		return nil
	}),
}

var branchDiffCmd = &cobra.Command{
	Use:   "branch-diff <a> <b>",
	Short: "List paths that changed between two branches' heads (spec.md branch-diff)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		diff, err := f.BranchDiff(args[0], args[1])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		rows := make([]uirender.Row, len(diff))
		for i, d := range diff {
			rows[i] = uirender.Row{Cells: []string{d.Path, d.Kind.String()}}
		}
		fmt.Println(uirender.NewListingTable([]string{"PATH", "CHANGE"}, rows))
		return nil
	}),
}
