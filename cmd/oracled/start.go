package main

import (
	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/daemon"
	"github.com/GPTx-global/flightsurety/oracle/log"
)

func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Register the oracles and answer requests until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeFlag(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			if err := log.SetLevel(cfg.Log.Level); err != nil {
				return err
			}
			if cfg.Log.ToFile {
				log.ResetLogger(cfg.Home())
				defer log.Close()
			}
			cfg.Print()

			ctx := cmd.Context()
			d, err := daemon.New(ctx, cfg)
			if err != nil {
				return err
			}

			log.Infof("oracle daemon started")
			return d.Run(ctx)
		},
	}
}
