package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "courtsched",
		Short:         "Books amenity court slots the moment their booking window opens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (keys use environment variable names)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newPasswdCmd())
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newLoadCmd(&configPath))
	root.AddCommand(newJobCmd(&configPath))
	root.AddCommand(newStatsCmd(&configPath))
	root.AddCommand(newTokenCmd(&configPath))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
