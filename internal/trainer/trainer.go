// Package trainer runs the year-by-year training and evaluation loop of the
// traffic volume regressor: normalization statistics, mini-batch updates,
// sample weighted split aggregation and best-epoch reporting.
package trainer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/internal/results"
	"github.com/cnclabs/trafficvol/pkg/metrics"
	"github.com/cnclabs/trafficvol/pkg/roadnet"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

// Encoder embeds every node of a snapshot. It must not modify the snapshot.
type Encoder interface {
	Encode(s *roadnet.Snapshot) (*mat.Dense, error)
}

// Predictor scores a batch of edges from the endpoint embeddings and, when
// the network has them, the edge attributes (nil otherwise). Predict must
// leave every parameter and gradient untouched.
type Predictor interface {
	Predict(hu, hv, attr *mat.Dense) ([]float64, error)
}

// TrainablePredictor also records a forward pass; calling the returned
// backward function with dLoss/dPrediction accumulates parameter gradients.
type TrainablePredictor interface {
	Predictor
	Forward(hu, hv, attr *mat.Dense) ([]float64, func(grad []float64), error)
}

// Optimizer updates the predictor parameters from accumulated gradients
type Optimizer interface {
	ZeroGrad()
	Step()
}

// MetricFunc scores the predictions of one year
type MetricFunc func(predictions, labels []float64) (map[string]float64, error)

// EpochResult is passed to Options.OnEpoch after every evaluation epoch
type EpochResult struct {
	Epoch   int
	Loss    float64
	Results map[string]results.Triple
}

// Options configures a training session
type Options struct {
	TrainYears []int
	ValidYears []int
	TestYears  []int

	Epochs    int
	BatchSize int
	// EvalSteps evaluates every N epochs
	EvalSteps int

	// LogMetrics defaults to MAE and MSE
	LogMetrics []string

	UseDynamicNodeFeatures bool
	// Stats are computed from TrainYears when nil and dynamic features are on
	Stats *FeatureStats

	// Device is recorded and printed but not interpreted
	Device string
	Seed   int64

	Metric  MetricFunc
	Out     io.Writer
	Logger  *slog.Logger
	OnEpoch func(EpochResult) error
}

func (o *Options) validate() error {
	switch {
	case o.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidOptions, o.Epochs)
	case o.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidOptions, o.BatchSize)
	case o.EvalSteps <= 0:
		return fmt.Errorf("%w: eval steps must be positive, got %d", ErrInvalidOptions, o.EvalSteps)
	case len(o.TrainYears) == 0:
		return fmt.Errorf("%w: no training years", ErrInvalidOptions)
	}
	return nil
}

// Trainer owns one training session over a fixed base network
type Trainer struct {
	encoder   Encoder
	predictor TrainablePredictor
	optimizer Optimizer
	base      *roadnet.Snapshot
	loader    yearly.Loader

	opts    Options
	stats   *FeatureStats
	names   []string
	history *results.Logger
	rng     *rand.Rand
	log     *slog.Logger
	out     io.Writer

	summaries []results.Summary
}

// New validates the options and, when dynamic node features are enabled
// without precomputed statistics, computes them from the training years.
func New(
	encoder Encoder,
	predictor TrainablePredictor,
	optimizer Optimizer,
	base *roadnet.Snapshot,
	loader yearly.Loader,
	opts Options,
) (*Trainer, error) {
	if encoder == nil || predictor == nil || optimizer == nil || base == nil || loader == nil {
		return nil, fmt.Errorf("%w: encoder, predictor, optimizer, base network and loader are required", ErrInvalidOptions)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(opts.LogMetrics) == 0 {
		opts.LogMetrics = metrics.DefaultMetrics()
	}
	if opts.Metric == nil {
		opts.Metric = metrics.EvalMAE
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Trainer{
		encoder:   encoder,
		predictor: predictor,
		optimizer: optimizer,
		base:      base,
		loader:    loader,
		opts:      opts,
		history:   results.NewLogger(opts.LogMetrics),
		rng:       rand.New(rand.NewSource(opts.Seed)),
		log:       opts.Logger,
		out:       opts.Out,
	}
	t.names = t.history.Metrics()

	switch {
	case opts.Stats.Enabled():
		if err := opts.Stats.Validate(); err != nil {
			return nil, err
		}
		t.stats = opts.Stats
	case opts.UseDynamicNodeFeatures:
		stats, err := ComputeStats(loader, opts.TrainYears)
		if err != nil {
			return nil, fmt.Errorf("compute node feature statistics: %w", err)
		}
		t.stats = stats
		t.log.Info("node feature statistics computed",
			slog.Int("columns", len(stats.Mean)),
			slog.Any("years", opts.TrainYears))
	}

	return t, nil
}

// FeatureStats returns the session statistics, nil when normalization is off
func (t *Trainer) FeatureStats() *FeatureStats { return t.stats }

// History returns the per-metric result log
func (t *Trainer) History() *results.Logger { return t.history }

// Summaries returns the best-epoch summaries of the last Train call
func (t *Trainer) Summaries() []results.Summary { return t.summaries }

// TrainEpoch runs one pass over the training years, in configured order,
// and returns the sample weighted mean loss.
func (t *Trainer) TrainEpoch() (float64, error) {
	totalLoss, totalExamples := 0.0, 0
	for _, year := range t.opts.TrainYears {
		loss, n, err := t.TrainOnYear(year)
		if err != nil {
			return 0, err
		}
		totalLoss += loss
		totalExamples += n
	}
	if totalExamples == 0 {
		return 0, &DegenerateError{Split: SplitTrain, Years: t.opts.TrainYears}
	}
	return totalLoss / float64(totalExamples), nil
}

// Train runs every epoch, evaluating every EvalSteps epochs, then prints
// the best-by-validation statistics of each metric and returns them keyed
// Train_<metric>, Valid_<metric> and Test_<metric>.
func (t *Trainer) Train() (map[string]float64, error) {
	t.printSettings()

	for epoch := 1; epoch <= t.opts.Epochs; epoch++ {
		loss, err := t.TrainEpoch()
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		t.log.Debug("epoch trained", slog.Int("epoch", epoch), slog.Float64("loss", loss))

		if epoch%t.opts.EvalSteps != 0 {
			continue
		}

		res, err := t.Test()
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		for _, name := range t.names {
			if err := t.history.Add(name, epoch, res[name]); err != nil {
				return nil, err
			}
		}

		for _, name := range t.names {
			r := res[name]
			fmt.Fprintln(t.out, name)
			fmt.Fprintf(t.out, "Epoch: %02d, Loss: %.4f, Train: %.4f, Valid: %.4f, Test: %.4f\n",
				epoch, loss, r.Train, r.Valid, r.Test)
		}
		fmt.Fprintln(t.out, "---")

		if t.opts.OnEpoch != nil {
			if err := t.opts.OnEpoch(EpochResult{Epoch: epoch, Loss: loss, Results: res}); err != nil {
				return nil, fmt.Errorf("epoch %d hook: %w", epoch, err)
			}
		}
	}

	trainLog := make(map[string]float64, 3*len(t.names))
	t.summaries = t.summaries[:0]
	for _, name := range t.names {
		fmt.Fprintln(t.out, name)
		s, err := t.history.Print(t.out, name, metrics.PolarityOf(name))
		if errors.Is(err, results.ErrEmptyHistory) {
			return nil, fmt.Errorf("no evaluation ran: %d epochs with eval every %d: %w", t.opts.Epochs, t.opts.EvalSteps, err)
		}
		if err != nil {
			return nil, err
		}
		t.summaries = append(t.summaries, s)
		trainLog["Train_"+name] = s.Train
		trainLog["Valid_"+name] = s.Valid
		trainLog["Test_"+name] = s.Test
	}

	return trainLog, nil
}

func (t *Trainer) printSettings() {
	fmt.Fprintln(t.out, "Model Setting:")
	fmt.Fprintf(t.out, "\tnodes:\t\t\t%d\n", t.base.NumNodes())
	fmt.Fprintf(t.out, "\tedges:\t\t\t%d\n", t.base.NumEdges())
	fmt.Fprintf(t.out, "\tedge_attrs:\t\t%d\n", t.base.EdgeAttrDim())
	fmt.Fprintf(t.out, "\tdynamic_features:\t%t\n", t.opts.UseDynamicNodeFeatures)
	fmt.Fprintf(t.out, "\tdevice:\t\t\t%s\n", t.opts.Device)

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "Learning Parameters:")
	fmt.Fprintf(t.out, "\tepochs:\t\t\t%d\n", t.opts.Epochs)
	fmt.Fprintf(t.out, "\tbatch_size:\t\t%d\n", t.opts.BatchSize)
	fmt.Fprintf(t.out, "\teval_steps:\t\t%d\n", t.opts.EvalSteps)
	fmt.Fprintf(t.out, "\ttrain_years:\t\t%v\n", t.opts.TrainYears)
	fmt.Fprintf(t.out, "\tvalid_years:\t\t%v\n", t.opts.ValidYears)
	fmt.Fprintf(t.out, "\ttest_years:\t\t%v\n", t.opts.TestYears)
	fmt.Fprintf(t.out, "\tmetrics:\t\t%v\n", t.names)

	fmt.Fprintln(t.out, "Start Training:")
}
