package trainer

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/pkg/optim"
	"github.com/cnclabs/trafficvol/pkg/roadnet"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

// MinEdges is the fewest labelled edges a year needs to take part in
// training or evaluation. Smaller years carry zero weight.
const MinEdges = 10

// yearPass is the encoded working copy of one year
type yearPass struct {
	sample   *yearly.Sample
	snapshot *roadnet.Snapshot
	h        *mat.Dense
	embDim   int
	attrBuf  []float64
}

// prepare loads, normalizes, augments and encodes one year. It returns nil
// for a year that must be skipped.
func (t *Trainer) prepare(year int) (*yearPass, error) {
	sample, err := t.loader.Load(year)
	if err != nil {
		return nil, fmt.Errorf("load year %d: %w", year, err)
	}
	if sample.Len() < MinEdges {
		t.log.Debug("year skipped: not enough labelled edges",
			slog.Int("year", year),
			slog.Int("edges", sample.Len()),
			slog.Int("min_edges", MinEdges))
		return nil, nil
	}
	if len(sample.Labels) != len(sample.Edges) {
		return nil, fmt.Errorf("year %d: %d edges but %d labels", year, len(sample.Edges), len(sample.Labels))
	}
	n := t.base.NumNodes()
	for i, e := range sample.Edges {
		if e.U < 0 || e.U >= n || e.V < 0 || e.V >= n {
			return nil, fmt.Errorf("year %d edge %d (%d, %d): %w", year, i, e.U, e.V, roadnet.ErrNodeOutOfRange)
		}
	}

	snapshot := t.base
	if t.opts.UseDynamicNodeFeatures {
		if sample.NodeFeatures == nil {
			return nil, fmt.Errorf("year %d: dynamic node features enabled but the year has none", year)
		}
		x, err := Normalize(sample.NodeFeatures, t.stats)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		snapshot, err = t.base.WithNodeFeatures(x)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
	}

	h, err := t.encoder.Encode(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode year %d: %w", year, err)
	}
	if r, _ := h.Dims(); r != snapshot.NumNodes() {
		return nil, fmt.Errorf("encode year %d: %d embeddings for %d nodes", year, r, snapshot.NumNodes())
	}
	_, embDim := h.Dims()

	return &yearPass{
		sample:   sample,
		snapshot: snapshot,
		h:        h,
		embDim:   embDim,
		attrBuf:  make([]float64, snapshot.EdgeAttrDim()),
	}, nil
}

// batch gathers endpoint embeddings, edge attributes and labels for the
// edges at idx
func (p *yearPass) batch(idx []int) (hu, hv, attr *mat.Dense, labels []float64, err error) {
	n := len(idx)
	hu = mat.NewDense(n, p.embDim, nil)
	hv = mat.NewDense(n, p.embDim, nil)
	labels = make([]float64, n)
	if p.snapshot.HasEdgeAttr() {
		attr = mat.NewDense(n, p.snapshot.EdgeAttrDim(), nil)
	}

	for r, i := range idx {
		e := p.sample.Edges[i]
		hu.SetRow(r, p.h.RawRowView(e.U))
		hv.SetRow(r, p.h.RawRowView(e.V))
		labels[r] = p.sample.Labels[i]

		if attr != nil {
			if !p.snapshot.EdgeAttr(e, p.attrBuf) {
				return nil, nil, nil, nil, fmt.Errorf("year %d: edge (%d, %d) is not in the road network", p.sample.Year, e.U, e.V)
			}
			attr.SetRow(r, p.attrBuf)
		}
	}
	return hu, hv, attr, labels, nil
}

// TrainOnYear runs shuffled mini-batches over the labelled edges of year,
// taking one optimizer step per batch. It returns the summed batch loss
// weighted by batch size and the number of examples; a skipped year
// returns (0, 0, nil).
func (t *Trainer) TrainOnYear(year int) (float64, int, error) {
	pass, err := t.prepare(year)
	if err != nil || pass == nil {
		return 0, 0, err
	}

	n := pass.sample.Len()
	perm := t.rng.Perm(n)
	totalLoss, totalExamples := 0.0, 0

	for start := 0; start < n; start += t.opts.BatchSize {
		idx := perm[start:min(start+t.opts.BatchSize, n)]

		hu, hv, attr, labels, err := pass.batch(idx)
		if err != nil {
			return 0, 0, err
		}

		t.optimizer.ZeroGrad()
		pred, backward, err := t.predictor.Forward(hu, hv, attr)
		if err != nil {
			return 0, 0, fmt.Errorf("predict year %d: %w", year, err)
		}
		if len(pred) != len(idx) {
			return 0, 0, fmt.Errorf("predict year %d: %d predictions for %d edges", year, len(pred), len(idx))
		}

		loss, grad := optim.L1Loss(pred, labels)
		backward(grad)
		t.optimizer.Step()

		totalLoss += loss * float64(len(idx))
		totalExamples += len(idx)
	}

	return totalLoss, totalExamples, nil
}

// TestOnYear predicts every labelled edge of year in order, without
// recording gradients, and scores the predictions with the metric function.
// A skipped year returns an empty record and a count of 0.
func (t *Trainer) TestOnYear(year int) (map[string]float64, int, error) {
	pass, err := t.prepare(year)
	if err != nil {
		return nil, 0, err
	}
	if pass == nil {
		return map[string]float64{}, 0, nil
	}

	n := pass.sample.Len()
	t.log.Debug("eval on year",
		slog.Int("year", year),
		slog.Int("edges", n))

	preds := make([]float64, 0, n)
	idx := make([]int, 0, t.opts.BatchSize)
	for start := 0; start < n; start += t.opts.BatchSize {
		idx = idx[:0]
		for i := start; i < min(start+t.opts.BatchSize, n); i++ {
			idx = append(idx, i)
		}

		hu, hv, attr, _, err := pass.batch(idx)
		if err != nil {
			return nil, 0, err
		}
		out, err := t.predictor.Predict(hu, hv, attr)
		if err != nil {
			return nil, 0, fmt.Errorf("predict year %d: %w", year, err)
		}
		if len(out) != len(idx) {
			return nil, 0, fmt.Errorf("predict year %d: %d predictions for %d edges", year, len(out), len(idx))
		}
		preds = append(preds, out...)
	}

	record, err := t.opts.Metric(preds, pass.sample.Labels)
	if err != nil {
		return nil, 0, fmt.Errorf("score year %d: %w", year, err)
	}
	return record, n, nil
}
