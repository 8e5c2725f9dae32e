package trainer

import (
	"fmt"
	"math"

	"github.com/cnclabs/trafficvol/internal/results"
)

// Split names
const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"
)

// EvaluateSplit averages the tracked metrics over years, weighting each year
// by its number of labelled edges. Skipped years carry no weight; a split
// where every year is skipped returns a *DegenerateError. A NaN value (R2 of
// a year with constant labels) leaves that year out of that metric only; a
// metric that is NaN in every year stays NaN. The returned count is the
// number of edges over all non-skipped years.
func (t *Trainer) EvaluateSplit(split string, years []int) (map[string]float64, int, error) {
	sums := make(map[string]float64, len(t.names))
	weights := make(map[string]int, len(t.names))
	total := 0

	for _, year := range years {
		record, n, err := t.TestOnYear(year)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			continue
		}
		for _, name := range t.names {
			v, ok := record[name]
			if !ok {
				return nil, 0, fmt.Errorf("%s split, year %d: metric function reported no %q", split, year, name)
			}
			if math.IsNaN(v) {
				continue
			}
			sums[name] += v * float64(n)
			weights[name] += n
		}
		total += n
	}

	if total == 0 {
		return nil, 0, &DegenerateError{Split: split, Years: years}
	}
	out := make(map[string]float64, len(t.names))
	for _, name := range t.names {
		if weights[name] == 0 {
			out[name] = math.NaN()
			continue
		}
		out[name] = sums[name] / float64(weights[name])
	}
	return out, total, nil
}

// Test evaluates the train, valid and test splits and returns one triple
// per tracked metric.
func (t *Trainer) Test() (map[string]results.Triple, error) {
	train, _, err := t.EvaluateSplit(SplitTrain, t.opts.TrainYears)
	if err != nil {
		return nil, err
	}
	valid, _, err := t.EvaluateSplit(SplitValid, t.opts.ValidYears)
	if err != nil {
		return nil, err
	}
	test, _, err := t.EvaluateSplit(SplitTest, t.opts.TestYears)
	if err != nil {
		return nil, err
	}

	out := make(map[string]results.Triple, len(t.names))
	for _, name := range t.names {
		out[name] = results.Triple{
			Train: train[name],
			Valid: valid[name],
			Test:  test[name],
		}
	}
	return out, nil
}
