// Package optim holds trainable parameters and the optimizers that update
// them from accumulated gradients.
package optim

import (
	"fmt"
	"math"
)

// Param is a flat block of weights with its gradient accumulator
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// NewParam allocates a zeroed parameter of size n
func NewParam(name string, n int) *Param {
	return &Param{
		Name:  name,
		Value: make([]float64, n),
		Grad:  make([]float64, n),
	}
}

// Optimizer applies accumulated gradients to a fixed parameter set
type Optimizer interface {
	ZeroGrad()
	Step()
}

func zeroGrad(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// SGD is plain stochastic gradient descent with optional L2 weight decay
type SGD struct {
	params      []*Param
	lr          float64
	weightDecay float64
}

// NewSGD creates an SGD optimizer
func NewSGD(params []*Param, lr, weightDecay float64) *SGD {
	return &SGD{params: params, lr: lr, weightDecay: weightDecay}
}

// ZeroGrad clears every gradient
func (o *SGD) ZeroGrad() { zeroGrad(o.params) }

// Step applies w -= lr * (g + wd*w)
func (o *SGD) Step() {
	for _, p := range o.params {
		for i, g := range p.Grad {
			p.Value[i] -= o.lr * (g + o.weightDecay*p.Value[i])
		}
	}
}

// Adam implements Kingma & Ba with bias correction
type Adam struct {
	params      []*Param
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	m [][]float64
	v [][]float64
	t int
}

// NewAdam creates an Adam optimizer with the usual betas (0.9, 0.999)
func NewAdam(params []*Param, lr, weightDecay float64) *Adam {
	a := &Adam{
		params:      params,
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make([][]float64, len(params)),
		v:           make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Value))
		a.v[i] = make([]float64, len(p.Value))
	}
	return a
}

// ZeroGrad clears every gradient
func (o *Adam) ZeroGrad() { zeroGrad(o.params) }

// Step applies one Adam update
func (o *Adam) Step() {
	o.t++
	c1 := 1 - math.Pow(o.beta1, float64(o.t))
	c2 := 1 - math.Pow(o.beta2, float64(o.t))

	for k, p := range o.params {
		m, v := o.m[k], o.v[k]
		for i, g := range p.Grad {
			g += o.weightDecay * p.Value[i]
			m[i] = o.beta1*m[i] + (1-o.beta1)*g
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			p.Value[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + o.eps)
		}
	}
}

// New builds an optimizer by name: "sgd" or "adam"
func New(name string, params []*Param, lr, weightDecay float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return NewSGD(params, lr, weightDecay), nil
	case "adam", "":
		return NewAdam(params, lr, weightDecay), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", name)
	}
}
