package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Displays the clipboard backend, history occupancy and whether the clipboard
was recently too busy to open.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	cmd.Flags().Bool("json", false, "output JSON")
	addClientFlags(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := requestContext(v)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	last := "never"
	if !st.LastContention.IsZero() {
		last = fmt.Sprintf("%s (%s)", st.LastContention.Local().Format(time.RFC3339), fmtAge(st.LastContention))
	}
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Socket:\t%s\n", socketPath(v))
	_, _ = fmt.Fprintf(tw, "Backend:\t%s\n", st.Backend)
	_, _ = fmt.Fprintf(tw, "Entries:\t%d / %d\n", st.Count, st.Capacity)
	_, _ = fmt.Fprintf(tw, "Clipboard:\t%s\n", st.Contention)
	_, _ = fmt.Fprintf(tw, "Last busy:\t%s\n", last)
	return tw.Flush()
}
