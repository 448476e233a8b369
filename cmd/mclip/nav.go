package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/mclip/internal/rpc"
)

func newNavCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "nav <next|prev|commit|toggle|filter [text]>",
		Short: "Drive the daemon's picker one command at a time",
		Long: `Sends one picker command to the daemon and prints the resulting view.
The daemon keeps the filter and cursor between calls, so a key binding can
run "mclip nav next" and "mclip nav commit" without tracking indexes.
"filter" with no text clears the filter.`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"next", "prev", "commit", "toggle", "filter"},
		PreRunE:   func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:      func(_ *cobra.Command, args []string) error { return runNav(v, args) },
	}

	f := cmd.Flags()
	f.Int("width", 100, "truncate entries to this many characters (0 = no limit)")
	f.BoolP("quiet", "q", false, "do not print the view")
	addClientFlags(cmd)

	return cmd
}

func runNav(v *viper.Viper, args []string) error {
	kind, filter := args[0], ""
	if len(args) == 2 {
		filter = args[1]
	}

	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := requestContext(v)
	defer cancel()
	view, err := client.Dispatch(ctx, kind, filter)
	if err != nil {
		return fmt.Errorf("nav %s: %w", kind, err)
	}
	if v.GetBool("quiet") {
		return nil
	}
	return printView(os.Stdout, view, v.GetInt("width"))
}

// printView writes the picker view with a marker on the cursor row.
func printView(w io.Writer, view rpc.ViewReply, width int) error {
	if view.Filter != "" {
		_, _ = fmt.Fprintf(w, "filter: %s\n", view.Filter)
	}
	if len(view.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No entries.")
		return err
	}
	tw := tabwriter.NewWriter(w, 1, 0, 1, ' ', 0)
	for i, e := range view.Entries {
		mark := " "
		if i == view.Cursor {
			mark = ">"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", mark, i, oneLine(e, width))
	}
	return tw.Flush()
}
