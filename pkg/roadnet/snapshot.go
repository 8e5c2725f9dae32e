package roadnet

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFeatureRows is returned when a node feature matrix does not have one
	// row per node.
	ErrFeatureRows = errors.New("roadnet: feature rows do not match node count")

	// ErrNodeOutOfRange is returned when an edge references a node id outside
	// [0, NumNodes).
	ErrNodeOutOfRange = errors.New("roadnet: node id out of range")
)

// Edge is an ordered pair of node ids
type Edge struct {
	U int
	V int
}

// Snapshot is the static road network shared by every year.
// It is never modified after construction; WithNodeFeatures returns a new
// working copy instead.
type Snapshot struct {
	numNodes int
	edges    []Edge

	// x is N x F, nil when the network has no static node features
	x *mat.Dense
	// edgeAttr is E x A aligned with edges, nil when edges carry no attributes
	edgeAttr *mat.Dense

	index     map[Edge]int
	neighbors [][]int
}

// New builds a snapshot. x and edgeAttr may be nil.
func New(numNodes int, edges []Edge, x, edgeAttr *mat.Dense) (*Snapshot, error) {
	if numNodes <= 0 {
		return nil, fmt.Errorf("roadnet: snapshot needs at least one node, got %d", numNodes)
	}
	if x != nil {
		if r, _ := x.Dims(); r != numNodes {
			return nil, fmt.Errorf("%w: node features have %d rows, want %d", ErrFeatureRows, r, numNodes)
		}
	}
	if edgeAttr != nil {
		if r, _ := edgeAttr.Dims(); r != len(edges) {
			return nil, fmt.Errorf("roadnet: edge attributes have %d rows, want %d", r, len(edges))
		}
	}

	s := &Snapshot{
		numNodes:  numNodes,
		edges:     make([]Edge, len(edges)),
		x:         x,
		edgeAttr:  edgeAttr,
		index:     make(map[Edge]int, len(edges)),
		neighbors: make([][]int, numNodes),
	}
	copy(s.edges, edges)

	for i, e := range s.edges {
		if e.U < 0 || e.U >= numNodes || e.V < 0 || e.V >= numNodes {
			return nil, fmt.Errorf("%w: edge %d (%d, %d) with %d nodes", ErrNodeOutOfRange, i, e.U, e.V, numNodes)
		}
		if _, exists := s.index[e]; !exists {
			s.index[e] = i
		}
		// Adjacency is undirected regardless of edge orientation
		s.neighbors[e.U] = append(s.neighbors[e.U], e.V)
		if e.U != e.V {
			s.neighbors[e.V] = append(s.neighbors[e.V], e.U)
		}
	}

	return s, nil
}

// NumNodes returns the number of nodes
func (s *Snapshot) NumNodes() int { return s.numNodes }

// NumEdges returns the number of static edges
func (s *Snapshot) NumEdges() int { return len(s.edges) }

// Neighbors returns the undirected neighbour list of node. The slice must
// not be modified.
func (s *Snapshot) Neighbors(node int) []int { return s.neighbors[node] }

// NodeFeatures returns the node feature matrix, or nil when there is none.
func (s *Snapshot) NodeFeatures() mat.Matrix {
	if s.x == nil {
		return nil
	}
	return s.x
}

// FeatureDim returns the number of node feature columns
func (s *Snapshot) FeatureDim() int {
	if s.x == nil {
		return 0
	}
	_, c := s.x.Dims()
	return c
}

// EdgeAttrDim returns the number of edge attribute columns, 0 when absent
func (s *Snapshot) EdgeAttrDim() int {
	if s.edgeAttr == nil {
		return 0
	}
	_, c := s.edgeAttr.Dims()
	return c
}

// HasEdgeAttr reports whether the static edges carry attributes
func (s *Snapshot) HasEdgeAttr() bool { return s.edgeAttr != nil }

// EdgeAttr copies the attribute row of e into dst and reports whether the
// edge exists in either orientation.
func (s *Snapshot) EdgeAttr(e Edge, dst []float64) bool {
	if s.edgeAttr == nil {
		return false
	}
	i, ok := s.index[e]
	if !ok {
		i, ok = s.index[Edge{U: e.V, V: e.U}]
	}
	if !ok {
		return false
	}
	mat.Row(dst, i, s.edgeAttr)
	return true
}

// WithNodeFeatures returns a working copy whose node matrix is the base
// features with f appended as extra columns, or f alone when the base has
// none. The receiver is left untouched.
func (s *Snapshot) WithNodeFeatures(f mat.Matrix) (*Snapshot, error) {
	r, _ := f.Dims()
	if r != s.numNodes {
		return nil, fmt.Errorf("%w: dynamic features have %d rows, want %d", ErrFeatureRows, r, s.numNodes)
	}

	var x *mat.Dense
	if s.x == nil {
		x = mat.DenseCopyOf(f)
	} else {
		x = new(mat.Dense)
		x.Augment(s.x, f)
	}

	working := *s
	working.x = x
	return &working, nil
}
