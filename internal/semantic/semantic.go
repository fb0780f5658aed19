package semantic

import (
	"context"
	"fmt"
	"math"

	"github.com/linnemanlabs/klaxon/internal/classify"
)

// Embedder turns text into a fixed-dimension vector. Implementations are
// expected to be deterministic for identical input and may fail; the
// classifier treats failure as a stage miss, never as a terminal error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tune the semantic stage.
type Options struct {
	// MinExemplars is the minimum exemplar count the active index must have
	// been built from; below it the stage is skipped entirely.
	MinExemplars int
	// ConfidenceFloor is the minimum cluster purity for a definitive answer.
	ConfidenceFloor float64
}

// Classifier is the second cascade stage. It embeds the message, finds the
// nearest cluster in the active index, and answers only when the point falls
// inside a sufficiently pure cluster's radius.
type Classifier struct {
	embedder Embedder
	index    *Holder
	opts     Options
}

// New builds the semantic stage, filling zero options with defaults.
func New(embedder Embedder, index *Holder, opts Options) *Classifier {
	if opts.MinExemplars == 0 {
		opts.MinExemplars = 25
	}
	if opts.ConfidenceFloor == 0 {
		opts.ConfidenceFloor = 0.55
	}
	return &Classifier{embedder: embedder, index: index, opts: opts}
}

// Stage implements classify.Classifier.
func (c *Classifier) Stage() classify.Stage { return classify.StageSemantic }

// Classify implements classify.Classifier. All reads go against one index
// snapshot so a concurrent hot swap cannot tear a lookup.
func (c *Classifier) Classify(ctx context.Context, message string) (classify.Outcome, bool, error) {
	idx := c.index.Active()
	if idx == nil || idx.ExemplarCount < c.opts.MinExemplars {
		return classify.Outcome{}, false, nil
	}

	vec, err := c.embedder.Embed(ctx, message)
	if err != nil {
		return classify.Outcome{}, false, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != idx.Dim {
		return classify.Outcome{}, false, fmt.Errorf("embedding dim %d, index wants %d", len(vec), idx.Dim)
	}

	cluster, dist, ok := idx.Nearest(vec)
	if !ok {
		return classify.Outcome{}, false, nil
	}
	if dist > cluster.Radius || cluster.Purity < c.opts.ConfidenceFloor {
		// Noise point or impure neighborhood: fall through.
		return classify.Outcome{}, false, nil
	}

	category, err := classify.ParseCategory(cluster.Label)
	if err != nil {
		return classify.Outcome{}, false, err
	}
	return classify.Outcome{
		Category:   category,
		Confidence: cluster.Purity,
		Signals:    []string{cluster.ID},
	}, true, nil
}

// cosineDistance is 1 - cosine similarity; 0 for identical directions, up to
// 2 for opposite ones. Mismatched or zero vectors map to the maximum.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
