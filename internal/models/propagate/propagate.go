package propagate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/pkg/roadnet"
)

// DefaultHops is the number of aggregation rounds when none is given
const DefaultHops = 2

// Encoder embeds every node by concatenating its own features with the
// mean of its neighbours' features after 1..Hops rounds of propagation,
// in the spirit of FastRP's iterative neighbour aggregation. It has no
// parameters, so the same snapshot always produces the same embeddings.
type Encoder struct {
	hops int
}

// New creates an encoder with the given number of propagation rounds
func New(hops int) *Encoder {
	if hops < 0 {
		hops = DefaultHops
	}
	return &Encoder{hops: hops}
}

// Hops returns the number of propagation rounds
func (e *Encoder) Hops() int { return e.hops }

// OutputDim returns the embedding width for inDim input feature columns.
// A snapshot without node features is encoded from a single constant column.
func (e *Encoder) OutputDim(inDim int) int {
	if inDim == 0 {
		inDim = 1
	}
	return inDim * (e.hops + 1)
}

// Encode returns an N x OutputDim(F) embedding matrix
func (e *Encoder) Encode(s *roadnet.Snapshot) (*mat.Dense, error) {
	n := s.NumNodes()

	var h0 *mat.Dense
	if x := s.NodeFeatures(); x != nil {
		h0 = mat.DenseCopyOf(x)
	} else {
		ones := make([]float64, n)
		floats.AddConst(1, ones)
		h0 = mat.NewDense(n, 1, ones)
	}
	_, dim := h0.Dims()

	out := h0
	current := h0
	for iter := 0; iter < e.hops; iter++ {
		next := mat.NewDense(n, dim, nil)
		for v := 0; v < n; v++ {
			neighbors := s.Neighbors(v)
			if len(neighbors) == 0 {
				continue
			}
			row := next.RawRowView(v)
			for _, u := range neighbors {
				floats.Add(row, current.RawRowView(u))
			}
			floats.Scale(1/float64(len(neighbors)), row)
		}

		augmented := new(mat.Dense)
		augmented.Augment(out, next)
		out = augmented
		current = next
	}

	if _, c := out.Dims(); c != e.OutputDim(s.FeatureDim()) {
		return nil, fmt.Errorf("propagate: produced %d columns, want %d", c, e.OutputDim(s.FeatureDim()))
	}
	return out, nil
}
