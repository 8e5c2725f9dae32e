package trainer

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cnclabs/trafficvol/pkg/yearly"
)

// FeatureStats are the per-column mean and standard deviation of the dynamic
// node features over the training years. They are fixed for a session.
type FeatureStats struct {
	Mean []float64 `yaml:"node_feature_mean"`
	Std  []float64 `yaml:"node_feature_std"`
}

// Enabled reports whether the statistics carry a mean; unset statistics
// leave features untouched.
func (s *FeatureStats) Enabled() bool {
	return s != nil && len(s.Mean) > 0
}

// Validate checks that mean and std line up and std never divides by zero
func (s *FeatureStats) Validate() error {
	if len(s.Mean) != len(s.Std) {
		return fmt.Errorf("%w: %d means but %d standard deviations", ErrMissingStatistics, len(s.Mean), len(s.Std))
	}
	for j, sd := range s.Std {
		if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
			return fmt.Errorf("%w: standard deviation of column %d is %v", ErrMissingStatistics, j, sd)
		}
	}
	return nil
}

// ComputeStats stacks the node features of every year that has some and
// returns their column mean and (N-1) standard deviation. Years without
// features are skipped before stacking. A column without spread gets a
// standard deviation of 1.
func ComputeStats(loader yearly.Loader, years []int) (*FeatureStats, error) {
	var (
		parts []*mat.Dense
		rows  int
		cols  = -1
	)

	for _, year := range years {
		sample, err := loader.Load(year)
		if err != nil {
			return nil, fmt.Errorf("load year %d for statistics: %w", year, err)
		}
		if sample == nil || sample.NodeFeatures == nil || sample.NodeFeatures.IsEmpty() {
			slog.Warn("year has no node features, excluded from statistics", slog.Int("year", year))
			continue
		}

		r, c := sample.NodeFeatures.Dims()
		if cols >= 0 && c != cols {
			return nil, fmt.Errorf("year %d has %d feature columns, earlier years have %d", year, c, cols)
		}
		cols = c
		rows += r
		parts = append(parts, sample.NodeFeatures)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: none of the training years %v has node features", ErrMissingStatistics, years)
	}

	all := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, p := range parts {
		r, _ := p.Dims()
		all.Slice(offset, offset+r, 0, cols).(*mat.Dense).Copy(p)
		offset += r
	}

	stats := &FeatureStats{
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, all)
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
			std = 1
		}
		stats.Mean[j] = mean
		stats.Std[j] = std
	}

	return stats, nil
}

// Normalize returns (features - mean) / std as a new matrix. When stats are
// unset it returns features itself.
func Normalize(features *mat.Dense, stats *FeatureStats) (*mat.Dense, error) {
	if !stats.Enabled() {
		return features, nil
	}

	r, c := features.Dims()
	if c != len(stats.Mean) || c != len(stats.Std) {
		return nil, fmt.Errorf("normalize: features have %d columns, statistics %d", c, len(stats.Mean))
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - stats.Mean[j]) / stats.Std[j]
	}, features)
	return out, nil
}
