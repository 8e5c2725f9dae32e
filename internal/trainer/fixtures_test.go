package trainer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/internal/models/mlp"
	"github.com/cnclabs/trafficvol/internal/models/propagate"
	"github.com/cnclabs/trafficvol/pkg/optim"
	"github.com/cnclabs/trafficvol/pkg/roadnet"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

const dynamicCols = 2

// ring builds a cycle of n nodes whose single static feature is the node id.
// With attrs every edge carries (lanes, length).
func ring(t *testing.T, n int, attrs bool) *roadnet.Snapshot {
	t.Helper()

	edges := make([]roadnet.Edge, n)
	x := mat.NewDense(n, 1, nil)
	var a *mat.Dense
	if attrs {
		a = mat.NewDense(n, 2, nil)
	}
	for i := 0; i < n; i++ {
		edges[i] = roadnet.Edge{U: i, V: (i + 1) % n}
		x.Set(i, 0, float64(i))
		if attrs {
			a.Set(i, 0, float64(1+i%3))
			a.Set(i, 1, float64(i%5)/5)
		}
	}

	s, err := roadnet.New(n, edges, x, a)
	require.NoError(t, err)
	return s
}

// yearSample labels the first count ring edges with volume = 100 + u and
// gives every node dynamicCols features that drift with the year.
func yearSample(year, count, numNodes int) *yearly.Sample {
	s := &yearly.Sample{Year: year}
	for i := 0; i < count; i++ {
		s.Edges = append(s.Edges, roadnet.Edge{U: i, V: (i + 1) % numNodes})
		s.Labels = append(s.Labels, float64(100+i))
	}
	s.NodeFeatures = mat.NewDense(numNodes, dynamicCols, nil)
	for v := 0; v < numNodes; v++ {
		s.NodeFeatures.Set(v, 0, float64(year-2000)+float64(v%7))
		s.NodeFeatures.Set(v, 1, float64(v*v%11)*0.5)
	}
	return s
}

// memLoader serves fixed samples and counts lookups
type memLoader struct {
	samples map[int]*yearly.Sample
	calls   map[int]int
}

func newMemLoader(samples ...*yearly.Sample) *memLoader {
	l := &memLoader{samples: map[int]*yearly.Sample{}, calls: map[int]int{}}
	for _, s := range samples {
		l.samples[s.Year] = s
	}
	return l
}

func (l *memLoader) Load(year int) (*yearly.Sample, error) {
	l.calls[year]++
	return l.samples[year], nil
}

func quietOptions() Options {
	return Options{
		Epochs:    1,
		BatchSize: 4,
		EvalSteps: 1,
		Seed:      1,
		Out:       io.Discard,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// session wires the concrete encoder and predictor around a fixture network
func session(t *testing.T, base *roadnet.Snapshot, loader yearly.Loader, opts Options) (*Trainer, *mlp.Predictor) {
	t.Helper()

	enc := propagate.New(1)
	inDim := base.FeatureDim()
	if opts.UseDynamicNodeFeatures {
		inDim += dynamicCols
	}
	pred, err := mlp.New(enc.OutputDim(inDim), base.EdgeAttrDim(), 8, 42)
	require.NoError(t, err)

	tr, err := New(enc, pred, optim.NewAdam(pred.Params(), 0.01, 0), base, loader, opts)
	require.NoError(t, err)
	return tr, pred
}

func snapshotParams(p *mlp.Predictor) [][]float64 {
	var out [][]float64
	for _, param := range p.Params() {
		out = append(out, append([]float64(nil), param.Value...))
	}
	return out
}

// echoPredictor predicts the first embedding column of the source node
type echoPredictor struct {
	forwards  int
	predicts  int
	backwards int
}

func (p *echoPredictor) Predict(hu, _, _ *mat.Dense) ([]float64, error) {
	p.predicts++
	return mat.Col(nil, 0, hu), nil
}

func (p *echoPredictor) Forward(hu, _, _ *mat.Dense) ([]float64, func([]float64), error) {
	p.forwards++
	return mat.Col(nil, 0, hu), func([]float64) { p.backwards++ }, nil
}

type countingOptimizer struct {
	zeroGrads int
	steps     int
}

func (o *countingOptimizer) ZeroGrad() { o.zeroGrads++ }
func (o *countingOptimizer) Step()     { o.steps++ }

type mockPredictor struct{ mock.Mock }

func (m *mockPredictor) Predict(hu, hv, attr *mat.Dense) ([]float64, error) {
	args := m.Called(hu, hv, attr)
	return args.Get(0).([]float64), args.Error(1)
}

func (m *mockPredictor) Forward(hu, hv, attr *mat.Dense) ([]float64, func([]float64), error) {
	args := m.Called(hu, hv, attr)
	return args.Get(0).([]float64), args.Get(1).(func([]float64)), args.Error(2)
}

type mockOptimizer struct{ mock.Mock }

func (m *mockOptimizer) ZeroGrad() { m.Called() }
func (m *mockOptimizer) Step()     { m.Called() }

type mockEncoder struct{ mock.Mock }

func (m *mockEncoder) Encode(s *roadnet.Snapshot) (*mat.Dense, error) {
	args := m.Called(s)
	return args.Get(0).(*mat.Dense), args.Error(1)
}
