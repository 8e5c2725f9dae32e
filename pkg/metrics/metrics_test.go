package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalMAE(t *testing.T) {
	preds := []float64{1, 2, 3, 4}
	labels := []float64{2, 2, 1, 4}

	got, err := EvalMAE(preds, labels)
	require.NoError(t, err)

	// diffs: -1 0 2 0
	assert.InDelta(t, 0.75, got[MAE], 1e-12)
	assert.InDelta(t, 1.25, got[MSE], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), got[RMSE], 1e-12)

	// mean(labels) = 2.25, SStot = 0.0625+0.0625+1.5625+3.0625 = 4.75, SSres = 5
	assert.InDelta(t, 1-5/4.75, got[R2], 1e-12)
}

func TestEvalMAE_PerfectPrediction(t *testing.T) {
	labels := []float64{10, 20, 30}
	got, err := EvalMAE(labels, labels)
	require.NoError(t, err)

	assert.Zero(t, got[MAE])
	assert.Zero(t, got[MSE])
	assert.InDelta(t, 1.0, got[R2], 1e-12)
}

func TestEvalMAE_ConstantLabels(t *testing.T) {
	got, err := EvalMAE([]float64{1, 2}, []float64{3, 3})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[R2]))
}

func TestEvalMAE_Errors(t *testing.T) {
	_, err := EvalMAE([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = EvalMAE(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPolarityOf(t *testing.T) {
	tests := []struct {
		name string
		want Polarity
	}{
		{Loss, Minimize},
		{MAE, Minimize},
		{MSE, Minimize},
		{RMSE, Minimize},
		{R2, Maximize},
		{"Hits@10", Maximize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PolarityOf(tt.name))
		})
	}
}

func TestIsReported(t *testing.T) {
	got, err := EvalMAE([]float64{1, 2, 3}, []float64{1, 3, 2})
	require.NoError(t, err)

	for _, name := range Reported() {
		assert.True(t, IsReported(name), name)
		assert.Contains(t, got, name)
	}
	assert.Len(t, got, len(Reported()))

	for _, name := range []string{Loss, "Hits@10", "mae", ""} {
		assert.False(t, IsReported(name), name)
	}
}
