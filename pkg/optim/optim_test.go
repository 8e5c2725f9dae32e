package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1Loss(t *testing.T) {
	loss, grad := L1Loss([]float64{1, 5, 3}, []float64{2, 3, 3})

	assert.InDelta(t, 1.0, loss, 1e-12)
	assert.InDeltaSlice(t, []float64{-1.0 / 3, 1.0 / 3, 0}, grad, 1e-12)
}

func TestL1Loss_Empty(t *testing.T) {
	loss, grad := L1Loss(nil, nil)
	assert.Zero(t, loss)
	assert.Empty(t, grad)
}

func TestSGD_Step(t *testing.T) {
	p := NewParam("w", 2)
	p.Value[0], p.Value[1] = 1, -1
	opt := NewSGD([]*Param{p}, 0.1, 0)

	p.Grad[0], p.Grad[1] = 2, -2
	opt.Step()
	assert.InDeltaSlice(t, []float64{0.8, -0.8}, p.Value, 1e-12)

	opt.ZeroGrad()
	assert.Equal(t, []float64{0, 0}, p.Grad)

	opt.Step()
	assert.InDeltaSlice(t, []float64{0.8, -0.8}, p.Value, 1e-12, "zero gradient leaves weights alone")
}

func TestAdam_FirstStepMovesByLearningRate(t *testing.T) {
	p := NewParam("w", 2)
	opt := NewAdam([]*Param{p}, 0.01, 0)

	p.Grad[0], p.Grad[1] = 3, -0.5
	opt.Step()

	// With bias correction the first update is lr * sign(g)
	assert.InDelta(t, -0.01, p.Value[0], 1e-6)
	assert.InDelta(t, 0.01, p.Value[1], 1e-6)
}

func TestAdam_MinimizesQuadratic(t *testing.T) {
	p := NewParam("w", 1)
	p.Value[0] = 5
	opt := NewAdam([]*Param{p}, 0.1, 0)

	for i := 0; i < 500; i++ {
		opt.ZeroGrad()
		p.Grad[0] = 2 * (p.Value[0] - 2)
		opt.Step()
	}
	assert.InDelta(t, 2.0, p.Value[0], 0.1)
}

func TestNew(t *testing.T) {
	params := []*Param{NewParam("w", 1)}

	o, err := New("sgd", params, 0.1, 0)
	require.NoError(t, err)
	assert.IsType(t, &SGD{}, o)

	o, err = New("adam", params, 0.1, 0)
	require.NoError(t, err)
	assert.IsType(t, &Adam{}, o)

	_, err = New("lbfgs", params, 0.1, 0)
	assert.Error(t, err)
}
