package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newListCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clipboard history, newest first",
		Long: `Prints the recorded entries newest first, one per line, with the index
"mclip pick" accepts. --filter keeps entries containing the given text,
ignoring case; indexes then refer to the filtered list.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runList(v) },
	}

	f := cmd.Flags()
	f.StringP("filter", "f", "", "case-insensitive substring filter")
	f.Int("width", 100, "truncate entries to this many characters (0 = no limit)")
	addClientFlags(cmd)

	return cmd
}

func runList(v *viper.Viper) error {
	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := requestContext(v)
	defer cancel()
	entries, err := client.List(ctx, v.GetString("filter"))
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No entries.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	for i, e := range entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", i, oneLine(e, v.GetInt("width")))
	}
	return tw.Flush()
}
