package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/mclip/internal/rpc"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream history events",
		Long: `Prints a line for every entry the daemon records and every change of the
clipboard-busy signal, until interrupted.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runWatch(v) },
	}

	cmd.Flags().Int("width", 100, "truncate entries to this many characters (0 = no limit)")
	addClientFlags(cmd)

	return cmd
}

func runWatch(v *viper.Viper) error {
	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	width := v.GetInt("width")
	err = client.Watch(ctx, func(ev rpc.WatchEvent) error {
		ts := time.Now().Format("15:04:05")
		switch ev.Type {
		case "inserted":
			fmt.Printf("%s  + [%d] %s\n", ts, ev.Count, oneLine(ev.Text, width))
		case "contention":
			fmt.Printf("%s  ! clipboard %s\n", ts, ev.Contention)
		}
		return nil
	})
	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return nil
	}
	return fmt.Errorf("watch: %w", err)
}
