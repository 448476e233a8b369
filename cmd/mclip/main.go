// mclip: clipboard history daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "mclip",
		Short: "Clipboard history",
		Long: `mclip records the most recent distinct text snippets copied to the system
clipboard and lets you list, filter and re-select them.

Run "mclip daemon" once per desktop session. The other sub-commands talk to
the daemon over a local socket.

Config file search order (first found wins):
  /etc/mclip/mclip.toml
  $HOME/.config/mclip/mclip.toml
  path supplied via --config

All flags can be set via MCLIP_<FLAG> env vars (dashes become underscores)
or config-file keys. See "mclip daemon --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newListCmd(),
		newPickCmd(),
		newNavCmd(),
		newCopyCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("mclip %s\n", Version)
		},
	}
}
