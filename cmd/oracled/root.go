package main

import (
	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightsurety/oracle/config"
)

const flagHome = "home"

// NewRootCmd builds the oracled command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oracled",
		Short:         "FlightSurety oracle network simulator",
		Long:          "oracled registers a pool of oracle accounts with the FlightSuretyApp contract and answers its flight status requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagHome, config.DefaultHome(), "directory for config and logs")

	rootCmd.AddCommand(
		StartCmd(),
		InitCmd(),
		AccountsCmd(),
		VersionCmd(),
	)

	return rootCmd
}

func homeFlag(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString(flagHome)
}
