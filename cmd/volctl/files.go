package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/uirender"
)

func init() {
	rootCmd.AddCommand(lsCmd, statCmd, readCmd, writeCmd, appendCmd, mkdirCmd,
		hideCmd, moveCmd, copyCmd, hardlinkCmd, symlinkCmd, readlinkCmd,
		chmodCmd, chownCmd, findCmd, grepCmd)
}

func withVolume(run func(args []string) error) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, args []string) {
		if err := run(args); err != nil {
			fmt.Fprintf(os.Stderr, "volctl: %v\n", err)
			os.Exit(1)
		}
	}
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory's children (spec.md list)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		children, err := f.List(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		rows := make([]uirender.Row, len(children))
		for i, c := range children {
			rows[i] = uirender.Row{Cells: []string{c.Name, c.Stat.Kind.String(), fmt.Sprintf("%d", c.Stat.ID)}}
		}
		fmt.Println(uirender.NewListingTable([]string{"NAME", "KIND", "ENTRY"}, rows))
		return nil
	}),
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show an entry's attributes (spec.md stat)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		st, err := f.Stat(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Printf("kind=%s length=%d owner=%d perm=%o links=%d created=%s\n",
			st.Kind, st.Length, st.Owner, st.Perm, st.LinkCount, st.CreatedAt)
		return nil
	}),
}

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a file's content (spec.md read)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		data, err := f.Read(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	}),
}

var writeOwner uint32
var writePerm uint32

var writeCmd = &cobra.Command{
	Use:   "write <path> <content>",
	Short: "Create or replace a file's content (spec.md write)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Write(args[0], []byte(args[1]), writeOwner, uint16(writePerm), now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

func init() {
	writeCmd.Flags().Uint32Var(&writeOwner, "owner", 0, "owning uid")
	writeCmd.Flags().Uint32Var(&writePerm, "perm", 0o644, "permission bits (octal)")
}

var appendCmd = &cobra.Command{
	Use:   "append <path> <content>",
	Short: "Grow a file's content (spec.md append)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Append(args[0], []byte(args[1]), now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var mkdirOwner uint32
var mkdirPerm uint32

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory (spec.md mkdir)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Mkdir(args[0], mkdirOwner, uint16(mkdirPerm), now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

func init() {
	mkdirCmd.Flags().Uint32Var(&mkdirOwner, "owner", 0, "owning uid")
	mkdirCmd.Flags().Uint32Var(&mkdirPerm, "perm", 0o755, "permission bits (octal)")
}

var forceHide bool

var hideCmd = &cobra.Command{
	Use:   "hide <path>",
	Short: "Delete an entry (always transformed into a hide; spec.md hide)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		if !forceHide {
			ok, err := uirender.Confirm(fmt.Sprintf("hide %s?", args[0]), false)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(uirender.Hint("aborted"))
				return nil
			}
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Hide(args[0], now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

func init() {
	hideCmd.Flags().BoolVarP(&forceHide, "force", "f", false, "skip the confirmation prompt")
}

var moveCmd = &cobra.Command{
	Use:   "move <src> <dst>",
	Short: "Rename or relocate an entry (spec.md move)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Move(args[0], args[1], now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var copyCmd = &cobra.Command{
	Use:   "copy <src> <dst>",
	Short: "Duplicate an entry, sharing its blob (spec.md copy)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Copy(args[0], args[1], now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var hardlinkCmd = &cobra.Command{
	Use:   "hardlink <src> <dst>",
	Short: "Create a second name for the same blob identity (spec.md hardlink)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Hardlink(args[0], args[1], now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var symlinkOwner uint32

var symlinkCmd = &cobra.Command{
	Use:   "symlink <target> <path>",
	Short: "Create a symbolic link (spec.md symlink)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Symlink(args[0], args[1], symlinkOwner, now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

func init() {
	symlinkCmd.Flags().Uint32Var(&symlinkOwner, "owner", 0, "owning uid")
}

var readlinkCmd = &cobra.Command{
	Use:   "readlink <path>",
	Short: "Print a symlink's stored target (spec.md readlink)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		target, err := f.Readlink(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		fmt.Println(target)
		return nil
	}),
}

var chmodCmd = &cobra.Command{
	Use:   "chmod <path> <octal-perm>",
	Short: "Change an entry's permission bits (spec.md chmod)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		perm, err := strconv.ParseUint(args[1], 8, 16)
		if err != nil {
			return fmt.Errorf("parsing perm %q: %w", args[1], err)
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Chmod(args[0], uint16(perm), now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var chownCmd = &cobra.Command{
	Use:   "chown <path> <uid>",
	Short: "Change an entry's owner (spec.md chown)",
	Args:  cobra.ExactArgs(2),
	Run: withVolume(func(args []string) error {
		owner, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("parsing uid %q: %w", args[1], err)
		}
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		if err := f.Chown(args[0], uint32(owner), now()); err != nil {
			_ = dev.Close()
			return err
		}
		return saveAndClose(f, dev)
	}),
}

var findCmd = &cobra.Command{
	Use:   "find <name-pattern>",
	Short: "List every visible path whose base name matches a glob (spec.md find)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		matches, err := f.Find(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		for _, p := range matches {
			fmt.Println(p)
		}
		return nil
	}),
}

var grepCmd = &cobra.Command{
	Use:   "grep <text-pattern>",
	Short: "List every visible file whose content contains a substring (spec.md grep)",
	Args:  cobra.ExactArgs(1),
	Run: withVolume(func(args []string) error {
		f, dev, err := openVolume()
		if err != nil {
			return err
		}
		matches, err := f.Grep(args[0])
		if err != nil {
			_ = dev.Close()
			return err
		}
		if err := dev.Close(); err != nil {
			return err
		}
		for _, p := range matches {
			fmt.Println(p)
		}
		return nil
	}),
}
