package cmd

import (
	"fmt"
	"os"

	"github.com/framelink/framelink/cmd/relay"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "framelink",
		Short: "transport-agnostic protocol adapter",
		Long: fmt.Sprintf(`framelink (v%s)

A transport-agnostic protocol adapter layer: it bridges framed wire
protocols over heterogeneous transports (TCP, unix sockets, UDP,
serial lines, websockets) behind one uniform connection interface.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of framelink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("framelink v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(relay.RelayCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
