// Package signs labels sequences by their nearest recorded examples of
// user-defined signs.
package signs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// DefaultK is the number of nearest samples that vote on a match.
const DefaultK = 5

// MaxLabelLength bounds a sign label in bytes.
const MaxLabelLength = 64

var (
	// ErrNoSamples is returned by Match when no sample has been recorded.
	ErrNoSamples = errors.New("no sign samples recorded")
	// ErrDimension is returned when a feature vector's length differs from
	// the recorded samples.
	ErrDimension = errors.New("feature dimension mismatch")
	// ErrInvalidLabel is returned for empty or malformed labels.
	ErrInvalidLabel = errors.New("invalid sign label")
)

// Sample is one recorded example of a sign.
type Sample struct {
	ID       string
	Label    string
	Features []float64
}

// Neighbor is a sample and its distance to the matched features.
type Neighbor struct {
	Sample   *Sample
	Distance float64
}

// Match is the outcome of a nearest neighbour vote.
type Match struct {
	// Label received the most votes. Equal votes go to the label that sorts
	// first.
	Label string
	Votes int
	// Neighbors are the voting samples, nearest first.
	Neighbors []Neighbor
}

// LabelCount is a label and how many samples it has.
type LabelCount struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

// ValidateLabel checks that label can name a sign.
func ValidateLabel(label string) error {
	if label == "" || strings.TrimSpace(label) != label {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidLabel, MaxLabelLength)
	}
	for _, r := range label {
		if r == '/' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
		}
	}
	return nil
}

// Features converts a classifier embedding to a sample feature vector.
func Features(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// Matcher holds recorded samples and matches feature vectors against them.
// It is safe for concurrent use.
type Matcher struct {
	k int

	mu      sync.RWMutex
	samples []*Sample
}

// NewMatcher creates a Matcher where the k nearest samples vote. k <= 0
// means DefaultK.
func NewMatcher(k int) *Matcher {
	if k <= 0 {
		k = DefaultK
	}
	return &Matcher{k: k}
}

// K returns the number of voting samples.
func (m *Matcher) K() int {
	return m.k
}

// Add registers a sample. All samples must share one dimension.
func (m *Matcher) Add(s *Sample) error {
	if s == nil {
		return nil
	}
	if err := ValidateLabel(s.Label); err != nil {
		return err
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("%w: sample %s has no features", ErrDimension, s.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.dimension(); d > 0 && d != len(s.Features) {
		return fmt.Errorf("%w: sample has %d features, want %d", ErrDimension, len(s.Features), d)
	}
	m.samples = append(m.samples, s)
	return nil
}

// Reset replaces all samples. On error the matcher is left unchanged.
func (m *Matcher) Reset(samples []*Sample) error {
	fresh := NewMatcher(m.k)
	for _, s := range samples {
		if err := fresh.Add(s); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = fresh.samples
	return nil
}

// RemoveLabel drops every sample of label and returns how many were removed.
func (m *Matcher) RemoveLabel(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	for _, s := range m.samples {
		if s.Label != label {
			kept = append(kept, s)
		}
	}
	removed := len(m.samples) - len(kept)
	clear(m.samples[len(kept):])
	m.samples = kept
	return removed
}

// RemoveID drops the sample with the given ID and reports whether it was
// present.
func (m *Matcher) RemoveID(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.samples {
		if s.ID == id {
			m.samples = append(m.samples[:i], m.samples[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of samples.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

// Labels returns each label with its sample count, sorted by label.
func (m *Matcher) Labels() []LabelCount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, s := range m.samples {
		counts[s.Label]++
	}
	labels := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		labels = append(labels, LabelCount{Label: label, Samples: n})
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].Label < labels[j].Label
	})
	return labels
}

// Match ranks the samples by Euclidean distance to features and lets the k
// nearest vote on the label.
func (m *Matcher) Match(features []float64) (*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.samples) == 0 {
		return nil, ErrNoSamples
	}
	if d := m.dimension(); d != len(features) {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrDimension, len(features), d)
	}

	neighbors := make([]Neighbor, len(m.samples))
	for i, s := range m.samples {
		neighbors[i] = Neighbor{Sample: s, Distance: floats.Distance(features, s.Features, 2)}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > m.k {
		neighbors = neighbors[:m.k]
	}

	votes := make(map[string]int)
	for _, n := range neighbors {
		votes[n.Sample.Label]++
	}
	match := &Match{Neighbors: neighbors}
	for label, n := range votes {
		if n > match.Votes || (n == match.Votes && label < match.Label) {
			match.Label, match.Votes = label, n
		}
	}
	return match, nil
}

func (m *Matcher) dimension() int {
	if len(m.samples) == 0 {
		return 0
	}
	return len(m.samples[0].Features)
}
