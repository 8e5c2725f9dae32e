// Package yearly provides access to the per-year traffic volume samples of a
// road network: the edges with an observed volume, their labels and the
// node features of that year.
package yearly

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/trafficvol/pkg/roadnet"
)

// Sample is the labelled data of one calendar year. It is shared read-only
// between callers; nobody may modify it after Load returns.
type Sample struct {
	Year int

	// Edges and Labels are aligned: Labels[i] is the observed volume of Edges[i]
	Edges  []roadnet.Edge
	Labels []float64

	// NodeFeatures has one row per node, nil when the year has none
	NodeFeatures *mat.Dense
}

// Len returns the number of labelled edges
func (s *Sample) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Edges)
}

// Loader fetches the sample of one year. A year without data yields a nil
// sample and a nil error.
type Loader interface {
	Load(year int) (*Sample, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(year int) (*Sample, error)

// Load calls f(year)
func (f LoaderFunc) Load(year int) (*Sample, error) { return f(year) }
