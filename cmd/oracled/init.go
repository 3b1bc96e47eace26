package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightsurety/oracle/config"
)

const (
	flagMnemonic   = "mnemonic"
	flagAppAddress = "app-address"
	flagEndpoint   = "endpoint"
	flagOverwrite  = "overwrite"

	// mnemonicNew asks init to generate a fresh mnemonic.
	mnemonicNew = "new"
)

func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file under the home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeFlag(cmd)
			if err != nil {
				return err
			}
			path := filepath.Join(home, config.FileName)

			overwrite, _ := cmd.Flags().GetBool(flagOverwrite)
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("%s already exists, use --%s to replace it", path, flagOverwrite)
			}

			cfg := config.Default()

			mnemonic, _ := cmd.Flags().GetString(flagMnemonic)
			switch mnemonic {
			case "":
			case mnemonicNew:
				entropy, err := bip39.NewEntropy(128)
				if err != nil {
					return err
				}
				if cfg.Accounts.Mnemonic, err = bip39.NewMnemonic(entropy); err != nil {
					return err
				}
			default:
				if !bip39.IsMnemonicValid(mnemonic) {
					return fmt.Errorf("invalid mnemonic")
				}
				cfg.Accounts.Mnemonic = mnemonic
			}

			if app, _ := cmd.Flags().GetString(flagAppAddress); app != "" {
				if !common.IsHexAddress(app) {
					return fmt.Errorf("invalid app address %q", app)
				}
				cfg.Chain.AppAddress = app
			}
			if endpoint, _ := cmd.Flags().GetString(flagEndpoint); endpoint != "" {
				cfg.Chain.Endpoint = endpoint
			}

			if err := config.Write(path, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
			if mnemonic == mnemonicNew {
				fmt.Fprintf(cmd.OutOrStdout(), "generated mnemonic, fund its accounts before starting:\n%s\n", cfg.Accounts.Mnemonic)
			}

			return nil
		},
	}

	cmd.Flags().String(flagMnemonic, "", `oracle account mnemonic, or "new" to generate one (default: truffle development mnemonic)`)
	cmd.Flags().String(flagAppAddress, "", "FlightSuretyApp contract address")
	cmd.Flags().String(flagEndpoint, "", "chain RPC endpoint")
	cmd.Flags().Bool(flagOverwrite, false, "replace an existing config file")

	return cmd
}
