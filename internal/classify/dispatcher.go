package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/hasta/internal/detector"
	"github.com/ayusman/hasta/internal/sequence"
	"github.com/ayusman/hasta/internal/tensor"
)

// Score is one label's classifier score.
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is a classification of one sequence.
type Result struct {
	// Label is the highest scoring label. Ties go to the earliest label.
	Label string `json:"label"`
	Index int    `json:"index"`
	// Scores are in vocabulary order.
	Scores []Score `json:"scores"`
	// Features is the classifier's embedding of the sequence. It may be
	// empty when the model does not expose one.
	Features []float32 `json:"-"`
}

// Ranked returns the scores sorted by descending score. Equal scores keep
// vocabulary order.
func (r *Result) Ranked() []Score {
	ranked := append([]Score(nil), r.Scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Top returns the n highest ranked scores, or all of them if n exceeds the
// vocabulary size.
func (r *Result) Top(n int) []Score {
	ranked := r.Ranked()
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Dispatcher feeds stacks to the classifier model.
type Dispatcher struct {
	model  detector.ClassifierModel
	vocab  *Vocabulary
	length int
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher for sequences of the given length.
func NewDispatcher(model detector.ClassifierModel, vocab *Vocabulary, length int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		model:  model,
		vocab:  vocab,
		length: length,
		logger: logger,
	}
}

// Vocabulary returns the dispatcher's vocabulary.
func (d *Dispatcher) Vocabulary() *Vocabulary {
	return d.vocab
}

// Classify scores stack and labels the result.
func (d *Dispatcher) Classify(ctx context.Context, stack *sequence.Stack) (*Result, error) {
	if d.model == nil {
		return nil, fmt.Errorf("classifier: %w", detector.ErrModelUnavailable)
	}
	if stack == nil {
		return nil, fmt.Errorf("classifier input: %w", tensor.ErrShapeMismatch)
	}
	if err := stack.CheckShapes(d.length); err != nil {
		return nil, fmt.Errorf("classifier input: %w", err)
	}

	start := time.Now()
	scores, features, err := d.model.PredictSign(ctx, stack.Pose, stack.Face, stack.LeftHand, stack.RightHand)
	if err != nil {
		return nil, fmt.Errorf("classifier model: %w", err)
	}
	if len(scores) != d.vocab.Len() {
		return nil, fmt.Errorf("classifier output: %w: %d scores for %d labels", tensor.ErrShapeMismatch, len(scores), d.vocab.Len())
	}
	if i := nonFinite(scores); i >= 0 {
		return nil, fmt.Errorf("classifier output: %w: score %d is %v", tensor.ErrShapeMismatch, i, scores[i])
	}
	if i := nonFinite(features); i >= 0 {
		return nil, fmt.Errorf("classifier output: %w: feature %d is %v", tensor.ErrShapeMismatch, i, features[i])
	}

	res := &Result{Scores: make([]Score, len(scores)), Features: features}
	best := 0
	for i, s := range scores {
		res.Scores[i] = Score{Label: d.vocab.Label(i), Score: float64(s)}
		if s > scores[best] {
			best = i
		}
	}
	res.Index = best
	res.Label = d.vocab.Label(best)

	d.logger.Info("sequence classified",
		zap.String("label", res.Label),
		zap.Float64("score", res.Scores[best].Score),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

// nonFinite returns the index of the first NaN or infinite value, or -1.
func nonFinite(values []float32) int {
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}
