package yearly

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cnclabs/trafficvol/pkg/roadnet"
)

// VolumesFile holds the labelled edges of a year: "u v volume"
const VolumesFile = "volumes.txt"

// FileLoader reads <DataDir>/<State>/<year>/volumes.txt and the optional
// <DataDir>/<State>/<year>/node_features.txt.
type FileLoader struct {
	DataDir string
	State   string
}

// NewFileLoader returns a loader rooted at dataDir for one state
func NewFileLoader(dataDir, state string) *FileLoader {
	return &FileLoader{DataDir: dataDir, State: state}
}

// StateDir returns the directory holding the static network of the state
func (l *FileLoader) StateDir() string {
	return filepath.Join(l.DataDir, l.State)
}

// YearDir returns the directory of one year
func (l *FileLoader) YearDir(year int) string {
	return filepath.Join(l.StateDir(), strconv.Itoa(year))
}

// Load implements Loader
func (l *FileLoader) Load(year int) (*Sample, error) {
	dir := l.YearDir(year)

	edges, labels, err := readVolumes(filepath.Join(dir, VolumesFile))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no volume data for year", slog.Int("year", year), slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load year %d: %w", year, err)
	}

	sample := &Sample{Year: year, Edges: edges, Labels: labels}

	x, err := roadnet.ReadMatrix(filepath.Join(dir, roadnet.NodeFeaturesFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("load year %d: %w", year, err)
	default:
		sample.NodeFeatures = x
	}

	return sample, nil
}

// readVolumes parses "u v volume" rows. Rows whose volume is not a finite,
// non-negative number carry no valid label and are skipped.
func readVolumes(filename string) ([]roadnet.Edge, []float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	var (
		edges   []roadnet.Edge
		labels  []float64
		skipped int
		lineNo  int
		scanner = bufio.NewScanner(file)
	)

	for scanner.Scan() {
		lineNo++
		parts := roadnet.Fields(scanner.Text())
		if parts == nil {
			continue
		}
		if len(parts) < 3 {
			return nil, nil, fmt.Errorf("%s:%d: want 3 columns, got %d", filename, lineNo, len(parts))
		}

		u, err := roadnet.ParseNode(parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		v, err := roadnet.ParseNode(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}

		volume, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
			skipped++
			continue
		}

		edges = append(edges, roadnet.Edge{U: u, V: v})
		labels = append(labels, volume)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading file: %w", err)
	}

	if skipped > 0 {
		slog.Debug("skipped rows without a valid volume",
			slog.String("file", filename),
			slog.Int("skipped", skipped))
	}

	return edges, labels, nil
}
