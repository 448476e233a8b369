package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCopyCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy stdin to the clipboard (like pbcopy)",
		Long: `Reads stdin and writes it to the system clipboard through the daemon, which
also records it in history. Empty input is ignored.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runCopy(v) },
	}

	addClientFlags(cmd)
	return cmd
}

func runCopy(v *viper.Viper) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	client, done, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := requestContext(v)
	defer cancel()
	if err := client.Copy(ctx, string(data)); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}
