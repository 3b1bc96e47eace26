package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/config"
)

func AccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Print the oracle addresses derived from the configured mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeFlag(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Read(home)
			if err != nil {
				return err
			}

			keyring, err := chain.NewKeyring(cfg.Accounts.Mnemonic, cfg.Accounts.FirstIndex, cfg.Accounts.Count)
			if err != nil {
				return err
			}

			for i, addr := range keyring.Addresses() {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", cfg.Accounts.FirstIndex+i, addr.Hex())
			}

			return nil
		},
	}
}
