package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drawsync",
		Short: "Shared drawing canvas hub",
		Long: `drawsync relays line segments between browsers drawing on the same
canvas. Every segment a client sends over its websocket is forwarded to
all other connected clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		bombCmd(),
		versionCmd(),
	)
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drawsync %s (%s)\n", version, commit)
		},
	}
}
