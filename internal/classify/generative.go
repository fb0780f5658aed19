package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"
)

// Provider is the external generative-text capability the fallback stage
// invokes. Complete sends a system prompt and user prompt and returns the raw
// reply text; it may fail or exceed the context deadline.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// GenerativeOptions tune the fallback stage.
type GenerativeOptions struct {
	// Confidence is assigned to every successful generative classification;
	// the underlying model exposes no calibrated probability.
	Confidence float64
	// Timeout bounds each provider call.
	Timeout time.Duration
	// MaxConcurrent caps in-flight provider calls, independent of the
	// classification worker pool, to respect external rate limits.
	MaxConcurrent int64
}

// GenerativeClassifier is the last cascade stage. It prompts an external
// generative model with the message and the category definitions, and maps
// the reply back onto the category enum.
type GenerativeClassifier struct {
	provider   Provider
	sem        *semaphore.Weighted
	confidence float64
	timeout    time.Duration
}

// NewGenerative builds the fallback stage, filling zero options with
// defaults.
func NewGenerative(provider Provider, opts GenerativeOptions) *GenerativeClassifier {
	if opts.Confidence == 0 {
		opts.Confidence = 0.6
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = 2
	}
	return &GenerativeClassifier{
		provider:   provider,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		confidence: opts.Confidence,
		timeout:    opts.Timeout,
	}
}

// Stage implements Classifier.
func (g *GenerativeClassifier) Stage() Stage { return StageGenerative }

const generativeSystemPrompt = `You classify raw operational log lines into exactly one category. Reply with a single JSON object of the form {"category": "<name>", "rationale": "<one sentence>"} and nothing else.`

// Classify invokes the provider under the concurrency cap and per-call
// timeout. Any failure is returned as an error for the coordinator to absorb.
func (g *GenerativeClassifier) Classify(ctx context.Context, message string) (Outcome, bool, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, false, fmt.Errorf("acquire generative slot: %w", err)
	}
	defer g.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.provider.Complete(ctx, generativeSystemPrompt, buildPrompt(message))
	if err != nil {
		return Outcome{}, false, fmt.Errorf("generative provider: %w", err)
	}

	label, rationale, err := parseReply(reply)
	if err != nil {
		return Outcome{}, false, err
	}
	category, err := ParseCategory(label)
	if err != nil {
		return Outcome{}, false, err
	}

	signals := []string{}
	if rationale != "" {
		signals = append(signals, rationale)
	}
	return Outcome{
		Category:   category,
		Confidence: g.confidence,
		Signals:    signals,
	}, true, nil
}

func buildPrompt(message string) string {
	var b strings.Builder
	b.WriteString("Classify this log message into one of the following categories:\n")
	for i, c := range Categories() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\nIf you cannot determine the category, use Unclassified.\n\nLog message:\n")
	b.WriteString(message)
	return b.String()
}

// parseReply extracts (label, rationale) from the provider reply. A strict
// JSON object is expected, but a bare category name is tolerated since some
// models ignore format instructions.
func parseReply(reply string) (label, rationale string, err error) {
	trimmed := strings.TrimSpace(reply)

	// Models sometimes fence the JSON in markdown.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") {
		var out struct {
			Category  string `json:"category"`
			Rationale string `json:"rationale"`
		}
		if jsonErr := json.Unmarshal([]byte(trimmed), &out); jsonErr != nil {
			return "", "", fmt.Errorf("%w: unparseable reply %q", ErrInvalidLabel, truncateReply(reply))
		}
		return out.Category, out.Rationale, nil
	}
	return trimmed, "", nil
}

func truncateReply(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
