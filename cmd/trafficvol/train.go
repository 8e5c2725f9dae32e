package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cnclabs/trafficvol/internal/config"
	"github.com/cnclabs/trafficvol/internal/models/mlp"
	"github.com/cnclabs/trafficvol/internal/models/propagate"
	"github.com/cnclabs/trafficvol/internal/store"
	"github.com/cnclabs/trafficvol/internal/trainer"
	"github.com/cnclabs/trafficvol/pkg/optim"
	"github.com/cnclabs/trafficvol/pkg/roadnet"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

func newTrainCmd(root *rootFlags) *cobra.Command {
	var (
		dataDir   string
		state     string
		epochs    int
		batchSize int
		evalSteps int
		device    string
		seed      int64
		save      string
		dsn       string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate over the configured years",
		Example: `  trafficvol train -c vermont.yaml
  trafficvol train -c vermont.yaml --epochs 50 --save model.txt --dsn runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.config)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if f.Changed("state") {
				cfg.StateName = state
			}
			if f.Changed("epochs") {
				cfg.Epochs = epochs
			}
			if f.Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if f.Changed("eval-steps") {
				cfg.EvalSteps = evalSteps
			}
			if f.Changed("device") {
				cfg.Device = device
			}
			if f.Changed("seed") {
				cfg.Seed = seed
			}
			if f.Changed("save") {
				cfg.Save = save
			}
			if f.Changed("dsn") {
				cfg.Store.DSN = dsn
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			_, err = runTrain(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&dataDir, "data-dir", "", "root directory of the yearly data")
	f.StringVar(&state, "state", "", "state (road network) to train on")
	f.IntVar(&epochs, "epochs", 0, "number of training epochs")
	f.IntVar(&batchSize, "batch-size", 0, "edges per mini-batch")
	f.IntVar(&evalSteps, "eval-steps", 0, "evaluate every N epochs")
	f.StringVar(&device, "device", "", "device recorded with the run")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.StringVar(&save, "save", "", "write the trained predictor to this file")
	f.StringVar(&dsn, "dsn", "", "record the run in this database")
	return cmd
}

// runTrain wires the session described by cfg and trains it
func runTrain(ctx context.Context, cfg *config.Config, out io.Writer) (map[string]float64, error) {
	files := yearly.NewFileLoader(cfg.DataDir, cfg.StateName)
	base, err := roadnet.Load(files.StateDir())
	if err != nil {
		return nil, err
	}
	loader, err := yearly.NewCachedLoader(files, cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	opts := cfg.Options()
	opts.Out = out
	opts.Logger = slog.Default()

	// The predictor width depends on the dynamic feature count, so the
	// statistics are settled before the model is built
	inDim := base.FeatureDim()
	if cfg.UseDynamicNodeFeatures {
		if opts.Stats == nil {
			if opts.Stats, err = trainer.ComputeStats(loader, cfg.TrainYears); err != nil {
				return nil, err
			}
		}
		inDim += len(opts.Stats.Mean)
	}

	encoder := propagate.New(cfg.Model.Hops)
	predictor, err := mlp.New(encoder.OutputDim(inDim), base.EdgeAttrDim(), cfg.Model.Hidden, cfg.Seed)
	if err != nil {
		return nil, err
	}
	optimizer, err := optim.New(cfg.Model.Optimizer, predictor.Params(), cfg.Model.LR, cfg.Model.WeightDecay)
	if err != nil {
		return nil, err
	}

	var (
		runs  *store.Store
		runID string
	)
	if cfg.Store.DSN != "" {
		if runs, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN); err != nil {
			return nil, err
		}
		defer runs.Close()

		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		if runID, err = runs.NewRun(ctx, cfg.StateName, string(raw)); err != nil {
			return nil, err
		}
		slog.Info("recording run", slog.String("run_id", runID), slog.String("driver", cfg.Store.Driver))

		opts.OnEpoch = func(r trainer.EpochResult) error {
			return runs.RecordEpoch(ctx, runID, r)
		}
	}

	t, err := trainer.New(encoder, predictor, optimizer, base, loader, opts)
	if err != nil {
		return nil, err
	}
	trainLog, err := t.Train()
	if err != nil {
		return nil, err
	}

	if runs != nil {
		if err := runs.RecordSummaries(ctx, runID, t.Summaries()); err != nil {
			return nil, err
		}
	}

	if cfg.Save != "" {
		fmt.Fprintln(out, "Save Model:")
		if err := predictor.SaveWeights(cfg.Save); err != nil {
			return nil, fmt.Errorf("save model: %w", err)
		}
		fmt.Fprintf(out, "\tSave to <%s>\n", cfg.Save)
	}

	return trainLog, nil
}
