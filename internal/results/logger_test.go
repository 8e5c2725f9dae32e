package results

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/trafficvol/pkg/metrics"
)

func filled(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger([]string{metrics.MAE, metrics.R2})
	history := []Triple{
		{Train: 5, Valid: 6, Test: 7},
		{Train: 3, Valid: 2, Test: 4},
		{Train: 1, Valid: 9, Test: 8},
		{Train: 2, Valid: 2, Test: 1},
	}
	for i, tr := range history {
		require.NoError(t, l.Add(metrics.MAE, (i+1)*5, tr))
		require.NoError(t, l.Add(metrics.R2, (i+1)*5, tr))
	}
	return l
}

func TestSummarize_Min(t *testing.T) {
	s, err := filled(t).Summarize(metrics.MAE, metrics.Minimize)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Index, "ties keep the earliest epoch")
	assert.Equal(t, 10, s.Epoch)
	assert.Equal(t, Triple{Train: 3, Valid: 2, Test: 4}, s.Triple)
}

func TestSummarize_Max(t *testing.T) {
	s, err := filled(t).Summarize(metrics.R2, metrics.Maximize)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Index)
	assert.Equal(t, Triple{Train: 1, Valid: 9, Test: 8}, s.Triple)
}

func TestSummarize_SkipsNaN(t *testing.T) {
	l := NewLogger([]string{metrics.R2})
	require.NoError(t, l.Add(metrics.R2, 1, Triple{Valid: math.NaN()}))
	require.NoError(t, l.Add(metrics.R2, 2, Triple{Valid: -0.5}))
	require.NoError(t, l.Add(metrics.R2, 3, Triple{Valid: math.NaN()}))

	s, err := l.Summarize(metrics.R2, metrics.Maximize)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Epoch)
}

func TestSummarize_Errors(t *testing.T) {
	l := NewLogger([]string{metrics.MAE})

	_, err := l.Summarize(metrics.MAE, metrics.Minimize)
	assert.ErrorIs(t, err, ErrEmptyHistory)

	_, err = l.Summarize(metrics.MSE, metrics.Minimize)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestAdd_FixedMetricSet(t *testing.T) {
	l := NewLogger([]string{metrics.MAE, metrics.MSE, metrics.MAE})

	assert.Equal(t, []string{metrics.MAE, metrics.MSE}, l.Metrics())
	assert.True(t, l.Tracks(metrics.MSE))
	assert.False(t, l.Tracks(metrics.RMSE))

	err := l.Add(metrics.RMSE, 1, Triple{})
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.False(t, l.Tracks(metrics.RMSE), "unknown metrics are not inserted")
}

func TestHistory_IsACopy(t *testing.T) {
	l := filled(t)
	h, err := l.History(metrics.MAE)
	require.NoError(t, err)
	require.Len(t, h, 4)

	h[0].Valid = -100
	again, err := l.History(metrics.MAE)
	require.NoError(t, err)
	assert.Equal(t, 6.0, again[0].Valid)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	s, err := filled(t).Print(&buf, metrics.MAE, metrics.Minimize)
	require.NoError(t, err)

	assert.Equal(t, 10, s.Epoch)
	assert.Equal(t,
		"Lowest Valid: 2.0000 (epoch 10)\n  Final Train: 3.0000\n   Final Test: 4.0000\n",
		buf.String())
}
