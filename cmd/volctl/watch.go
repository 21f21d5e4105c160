package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ghartrid/voltree/internal/serial"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report external writes to the volume file until interrupted",
	Args:  cobra.NoArgs,
	Run: withVolume(func(args []string) error {
		path := resolveVolumePath()
		dw, err := serial.NewDeviceWatch(path)
		if err != nil {
			return err
		}
		defer dw.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Printf("watching %s for external changes (ctrl-c to stop)\n", path)
		dw.Run(ctx, func(event fsnotify.Event) {
			fmt.Printf("%s: %s\n", event.Op, event.Name)
		})
		return nil
	}),
}
