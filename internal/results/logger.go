// Package results keeps the per-epoch train/valid/test history of every
// tracked metric and picks the best epoch by validation value.
package results

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cnclabs/trafficvol/pkg/metrics"
)

var (
	// ErrUnknownMetric is returned for a metric the logger was not built with
	ErrUnknownMetric = errors.New("results: metric is not tracked")

	// ErrEmptyHistory is returned when a metric has no recorded epoch to
	// summarize
	ErrEmptyHistory = errors.New("results: no epochs recorded")
)

// Triple is one evaluation of a metric on the three splits
type Triple struct {
	Train float64
	Valid float64
	Test  float64
}

// Summary is the triple of the best epoch by validation value
type Summary struct {
	Metric   string
	Polarity metrics.Polarity
	// Index is the position in the history, Epoch the caller supplied epoch
	Index int
	Epoch int
	Triple
}

type entry struct {
	epoch int
	Triple
}

// Logger holds one history per metric. The metric set is fixed at
// construction.
type Logger struct {
	order   []string
	history map[string][]entry
}

// NewLogger tracks the given metric names, in order. Duplicates are ignored.
func NewLogger(names []string) *Logger {
	l := &Logger{history: make(map[string][]entry, len(names))}
	for _, name := range names {
		if _, exists := l.history[name]; exists {
			continue
		}
		l.order = append(l.order, name)
		l.history[name] = nil
	}
	return l
}

// Metrics returns the tracked names in construction order
func (l *Logger) Metrics() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Tracks reports whether name is tracked
func (l *Logger) Tracks(name string) bool {
	_, ok := l.history[name]
	return ok
}

// Add appends the triple of one evaluation epoch to the history of name
func (l *Logger) Add(name string, epoch int, t Triple) error {
	h, ok := l.history[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	l.history[name] = append(h, entry{epoch: epoch, Triple: t})
	return nil
}

// History returns a copy of the triples recorded for name
func (l *Logger) History(name string) ([]Triple, error) {
	h, ok := l.history[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	out := make([]Triple, len(h))
	for i, e := range h {
		out[i] = e.Triple
	}
	return out, nil
}

// Summarize selects the entry whose validation value is best under polarity.
// Ties keep the earliest epoch. NaN validation values never win.
func (l *Logger) Summarize(name string, polarity metrics.Polarity) (Summary, error) {
	h, ok := l.history[name]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	if len(h) == 0 {
		return Summary{}, fmt.Errorf("%w: %q", ErrEmptyHistory, name)
	}

	best := 0
	for i := 1; i < len(h); i++ {
		if better(h[i].Valid, h[best].Valid, polarity) {
			best = i
		}
	}

	return Summary{
		Metric:   name,
		Polarity: polarity,
		Index:    best,
		Epoch:    h[best].epoch,
		Triple:   h[best].Triple,
	}, nil
}

func better(candidate, current float64, polarity metrics.Polarity) bool {
	if math.IsNaN(candidate) {
		return false
	}
	if math.IsNaN(current) {
		return true
	}
	if polarity == metrics.Maximize {
		return candidate > current
	}
	return candidate < current
}

// Print writes the summary of name in the usual block form
func (l *Logger) Print(w io.Writer, name string, polarity metrics.Polarity) (Summary, error) {
	s, err := l.Summarize(name, polarity)
	if err != nil {
		return Summary{}, err
	}

	label := "Lowest"
	if polarity == metrics.Maximize {
		label = "Highest"
	}
	fmt.Fprintf(w, "%s Valid: %.4f (epoch %d)\n", label, s.Valid, s.Epoch)
	fmt.Fprintf(w, "  Final Train: %.4f\n", s.Train)
	fmt.Fprintf(w, "   Final Test: %.4f\n", s.Test)
	return s, nil
}
