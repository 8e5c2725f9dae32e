package optim

import "math"

// L1Loss returns mean(|pred - label|) and its gradient with respect to each
// prediction. The gradient of |0| is taken as 0.
func L1Loss(pred, labels []float64) (float64, []float64) {
	n := float64(len(pred))
	grad := make([]float64, len(pred))
	if n == 0 {
		return 0, grad
	}

	loss := 0.0
	for i, p := range pred {
		d := p - labels[i]
		loss += math.Abs(d)
		switch {
		case d > 0:
			grad[i] = 1 / n
		case d < 0:
			grad[i] = -1 / n
		}
	}
	return loss / n, grad
}
