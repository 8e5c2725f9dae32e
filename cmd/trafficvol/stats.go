package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cnclabs/trafficvol/internal/config"
	"github.com/cnclabs/trafficvol/internal/trainer"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

func newStatsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print node feature statistics of the training years as YAML",
		Long: `stats computes the per-column mean and standard deviation of the dynamic
node features over train_years. The output can be pasted into the session
configuration so later runs skip the computation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.config)
			if err != nil {
				return err
			}

			loader := yearly.NewFileLoader(cfg.DataDir, cfg.StateName)
			stats, err := trainer.ComputeStats(loader, cfg.TrainYears)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			if err := enc.Encode(stats); err != nil {
				return fmt.Errorf("encode statistics: %w", err)
			}
			return nil
		},
	}
}
