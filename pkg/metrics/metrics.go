// Package metrics scores traffic volume predictions.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/stat"
)

// Metric names reported by EvalMAE
const (
	Loss = "Loss"
	MAE  = "MAE"
	MSE  = "MSE"
	RMSE = "RMSE"
	R2   = "R2"
)

var (
	// ErrLengthMismatch is returned when predictions and labels are not paired
	ErrLengthMismatch = errors.New("metrics: predictions and labels differ in length")
	// ErrEmpty is returned for an empty prediction set
	ErrEmpty = errors.New("metrics: no predictions")
)

// Polarity tells whether a metric improves by going down or up
type Polarity int

const (
	Minimize Polarity = iota
	Maximize
)

func (p Polarity) String() string {
	if p == Maximize {
		return "max"
	}
	return "min"
}

// PolarityOf returns the polarity of a metric name. Error style metrics are
// minimized, anything else is treated as a score.
func PolarityOf(name string) Polarity {
	switch name {
	case Loss, MAE, MSE, RMSE:
		return Minimize
	default:
		return Maximize
	}
}

// Reported lists the metric names EvalMAE returns
func Reported() []string { return []string{MAE, MSE, RMSE, R2} }

// IsReported reports whether EvalMAE returns a metric called name
func IsReported(name string) bool {
	switch name {
	case MAE, MSE, RMSE, R2:
		return true
	}
	return false
}

// DefaultMetrics are tracked when no metric set is configured
func DefaultMetrics() []string { return []string{MAE, MSE} }

// EvalMAE scores predictions against labels and returns MAE, MSE, RMSE and R2.
// R2 is NaN when the labels have no variance.
func EvalMAE(predictions, labels []float64) (map[string]float64, error) {
	if len(predictions) != len(labels) {
		return nil, fmt.Errorf("%w: %d predictions, %d labels", ErrLengthMismatch, len(predictions), len(labels))
	}
	if len(predictions) == 0 {
		return nil, ErrEmpty
	}

	diff := vek.Sub(predictions, labels)
	mae := vek.Mean(vek.Abs(diff))
	mse := vek.Dot(diff, diff) / float64(len(diff))

	r2 := math.NaN()
	if len(labels) > 1 && stat.Variance(labels, nil) > 0 {
		r2 = stat.RSquaredFrom(predictions, labels, nil)
	}

	return map[string]float64{
		MAE:  mae,
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   r2,
	}, nil
}
