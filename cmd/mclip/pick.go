package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPickCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "pick <index>",
		Short: "Put a history entry back on the clipboard",
		Long: `Copies entry <index> of "mclip list" (with the same --filter) back to the
system clipboard. The entry keeps its place in history.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, args []string) error { return runPick(v, args[0]) },
	}

	f := cmd.Flags()
	f.StringP("filter", "f", "", "case-insensitive substring filter the index refers to")
	f.BoolP("print", "p", false, "also print the picked text to stdout")
	addClientFlags(cmd)

	return cmd
}

func runPick(v *viper.Viper, arg string) error {
	index, err := strconv.Atoi(arg)
	if err != nil || index < 0 {
		return fmt.Errorf("index must be a non-negative integer, got %q", arg)
	}

	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := requestContext(v)
	defer cancel()
	text, err := client.Select(ctx, index, v.GetString("filter"))
	if err != nil {
		return fmt.Errorf("pick: %w", err)
	}
	if v.GetBool("print") {
		fmt.Print(text)
	}
	return nil
}
