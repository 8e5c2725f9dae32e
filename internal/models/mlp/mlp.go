package mlp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/pkg/optim"
)

// ErrInputDim is returned when a batch does not match the configured widths
var ErrInputDim = errors.New("mlp: input width mismatch")

// Predictor scores an edge from the embeddings of its endpoints and its
// optional attributes:
//
//	z = [h_u | h_v | a]
//	y = w2 . relu(W1 z + b1) + b2
type Predictor struct {
	embDim  int
	attrDim int
	inDim   int
	hidden  int

	w1 *optim.Param // hidden x inDim, row major
	b1 *optim.Param
	w2 *optim.Param
	b2 *optim.Param
}

// New creates a predictor for endpoint embeddings of width embDim and edge
// attributes of width attrDim (0 when edges carry none).
func New(embDim, attrDim, hidden int, seed int64) (*Predictor, error) {
	if embDim <= 0 || hidden <= 0 || attrDim < 0 {
		return nil, fmt.Errorf("mlp: invalid shape emb=%d attr=%d hidden=%d", embDim, attrDim, hidden)
	}

	p := &Predictor{
		embDim:  embDim,
		attrDim: attrDim,
		inDim:   2*embDim + attrDim,
		hidden:  hidden,
	}
	p.w1 = optim.NewParam("w1", hidden*p.inDim)
	p.b1 = optim.NewParam("b1", hidden)
	p.w2 = optim.NewParam("w2", hidden)
	p.b2 = optim.NewParam("b2", 1)

	rng := rand.New(rand.NewSource(seed))
	scale1 := 1.0 / math.Sqrt(float64(p.inDim))
	for i := range p.w1.Value {
		p.w1.Value[i] = (rng.Float64()*2 - 1) * scale1
	}
	scale2 := 1.0 / math.Sqrt(float64(hidden))
	for i := range p.w2.Value {
		p.w2.Value[i] = (rng.Float64()*2 - 1) * scale2
	}

	return p, nil
}

// Params returns the trainable parameters in a fixed order
func (p *Predictor) Params() []*optim.Param {
	return []*optim.Param{p.w1, p.b1, p.w2, p.b2}
}

// InputDim returns the width of the concatenated input
func (p *Predictor) InputDim() int { return p.inDim }

// Predict scores a batch without recording anything for backpropagation.
// attr may be nil only when the predictor was built with attrDim 0.
func (p *Predictor) Predict(hu, hv, attr *mat.Dense) ([]float64, error) {
	n, err := p.check(hu, hv, attr)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	z := make([]float64, p.inDim)
	act := make([]float64, p.hidden)
	for r := 0; r < n; r++ {
		p.input(z, r, hu, hv, attr)
		out[r] = p.forward(z, act)
	}
	return out, nil
}

// Forward scores a batch and returns a backward function that accumulates
// the parameter gradients of sum_r grad[r] * y_r into Params().
func (p *Predictor) Forward(hu, hv, attr *mat.Dense) ([]float64, func(grad []float64), error) {
	n, err := p.check(hu, hv, attr)
	if err != nil {
		return nil, nil, err
	}

	out := make([]float64, n)
	zs := make([][]float64, n)
	acts := make([][]float64, n)
	for r := 0; r < n; r++ {
		zs[r] = make([]float64, p.inDim)
		acts[r] = make([]float64, p.hidden)
		p.input(zs[r], r, hu, hv, attr)
		out[r] = p.forward(zs[r], acts[r])
	}

	backward := func(grad []float64) {
		dh := make([]float64, p.hidden)
		for r := 0; r < n; r++ {
			g := grad[r]
			if g == 0 {
				continue
			}
			p.b2.Grad[0] += g
			floats.AddScaled(p.w2.Grad, g, acts[r])

			for i := 0; i < p.hidden; i++ {
				dh[i] = 0
				if acts[r][i] > 0 {
					dh[i] = g * p.w2.Value[i]
				}
			}
			floats.Add(p.b1.Grad, dh)
			for i, d := range dh {
				if d == 0 {
					continue
				}
				floats.AddScaled(p.w1.Grad[i*p.inDim:(i+1)*p.inDim], d, zs[r])
			}
		}
	}

	return out, backward, nil
}

// forward computes one output; act receives the hidden activations
func (p *Predictor) forward(z, act []float64) float64 {
	for i := 0; i < p.hidden; i++ {
		pre := floats.Dot(p.w1.Value[i*p.inDim:(i+1)*p.inDim], z) + p.b1.Value[i]
		act[i] = math.Max(pre, 0)
	}
	return floats.Dot(p.w2.Value, act) + p.b2.Value[0]
}

func (p *Predictor) input(z []float64, r int, hu, hv, attr *mat.Dense) {
	copy(z[:p.embDim], hu.RawRowView(r))
	copy(z[p.embDim:2*p.embDim], hv.RawRowView(r))
	if p.attrDim > 0 {
		copy(z[2*p.embDim:], attr.RawRowView(r))
	}
}

func (p *Predictor) check(hu, hv, attr *mat.Dense) (int, error) {
	n, cu := hu.Dims()
	m, cv := hv.Dims()
	if n != m || cu != p.embDim || cv != p.embDim {
		return 0, fmt.Errorf("%w: endpoints %dx%d and %dx%d, want width %d", ErrInputDim, n, cu, m, cv, p.embDim)
	}
	switch {
	case p.attrDim == 0 && attr != nil:
		return 0, fmt.Errorf("%w: got edge attributes but none were configured", ErrInputDim)
	case p.attrDim > 0 && attr == nil:
		return 0, fmt.Errorf("%w: missing edge attributes of width %d", ErrInputDim, p.attrDim)
	case attr != nil:
		if ra, ca := attr.Dims(); ra != n || ca != p.attrDim {
			return 0, fmt.Errorf("%w: attributes %dx%d, want %dx%d", ErrInputDim, ra, ca, n, p.attrDim)
		}
	}
	return n, nil
}

// SaveWeights writes the parameters as text: a shape header followed by one
// line per parameter block.
func (p *Predictor) SaveWeights(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "%d %d %d\n", p.embDim, p.attrDim, p.hidden)
	for _, param := range p.Params() {
		fmt.Fprintf(file, "%s %d", param.Name, len(param.Value))
		for _, v := range param.Value {
			fmt.Fprintf(file, " %.6f", v)
		}
		fmt.Fprintln(file)
	}

	return file.Close()
}
