package roadnet

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	// EdgesFile holds the static edge list: "u v [a1 a2 ...]"
	EdgesFile = "edges.txt"
	// NodeFeaturesFile holds one row of features per node
	NodeFeaturesFile = "node_features.txt"

	maxLineBytes = 4 << 20
)

// Load reads the static network of one state from dir.
// edges.txt is required, node_features.txt is optional.
func Load(dir string) (*Snapshot, error) {
	edges, attr, err := ReadEdgeList(filepath.Join(dir, EdgesFile))
	if err != nil {
		return nil, err
	}

	numNodes := 0
	for _, e := range edges {
		numNodes = max(numNodes, e.U+1, e.V+1)
	}

	x, err := ReadMatrix(filepath.Join(dir, NodeFeaturesFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		x = nil
	case err != nil:
		return nil, err
	default:
		rows, _ := x.Dims()
		if rows < numNodes {
			return nil, fmt.Errorf("%w: %s has %d rows but edges reference %d nodes",
				ErrFeatureRows, NodeFeaturesFile, rows, numNodes)
		}
		numNodes = rows
	}

	s, err := New(numNodes, edges, x, attr)
	if err != nil {
		return nil, err
	}

	slog.Info("road network loaded",
		slog.String("dir", dir),
		slog.Int("nodes", s.NumNodes()),
		slog.Int("edges", s.NumEdges()),
		slog.Int("node_features", s.FeatureDim()),
		slog.Int("edge_attrs", s.EdgeAttrDim()))

	return s, nil
}

// ReadEdgeList parses "u v [a1 a2 ...]" rows. Every row must carry the same
// number of attributes; the returned attribute matrix is nil when that
// number is zero.
func ReadEdgeList(filename string) ([]Edge, *mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	var (
		edges   []Edge
		attrs   []float64
		attrDim = -1
		lineNo  int
		scanner = bufio.NewScanner(file)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		lineNo++
		parts := Fields(scanner.Text())
		if parts == nil {
			continue
		}
		if len(parts) < 2 {
			return nil, nil, fmt.Errorf("%s:%d: want at least 2 columns, got %d", filename, lineNo, len(parts))
		}

		u, err := ParseNode(parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		v, err := ParseNode(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}

		if attrDim < 0 {
			attrDim = len(parts) - 2
		} else if len(parts)-2 != attrDim {
			return nil, nil, fmt.Errorf("%s:%d: want %d edge attributes, got %d", filename, lineNo, attrDim, len(parts)-2)
		}
		for _, p := range parts[2:] {
			a, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: invalid attribute %q: %w", filename, lineNo, p, err)
			}
			attrs = append(attrs, a)
		}

		edges = append(edges, Edge{U: u, V: v})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading file: %w", err)
	}
	if len(edges) == 0 {
		return nil, nil, fmt.Errorf("%s: no edges", filename)
	}

	if attrDim <= 0 {
		return edges, nil, nil
	}
	return edges, mat.NewDense(len(edges), attrDim, attrs), nil
}

// ReadMatrix parses a whitespace separated numeric matrix, one row per line.
// A missing file is reported with an error matching fs.ErrNotExist.
func ReadMatrix(filename string) (*mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	var (
		data    []float64
		rows    int
		cols    = -1
		lineNo  int
		scanner = bufio.NewScanner(file)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		lineNo++
		parts := Fields(scanner.Text())
		if parts == nil {
			continue
		}
		if cols < 0 {
			cols = len(parts)
		} else if len(parts) != cols {
			return nil, fmt.Errorf("%s:%d: want %d columns, got %d", filename, lineNo, cols, len(parts))
		}
		for _, p := range parts {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid value %q: %w", filename, lineNo, p, err)
			}
			data = append(data, f)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%s: empty matrix", filename)
	}

	return mat.NewDense(rows, cols, data), nil
}

// Fields splits a data file line, returning nil for blank lines and
// # comments.
func Fields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return strings.Fields(line)
}

// ParseNode parses a non-negative integer node id
func ParseNode(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNodeOutOfRange, id)
	}
	return id, nil
}
