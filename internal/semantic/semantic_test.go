package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/linnemanlabs/klaxon/internal/classify"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, s.err
}

// testIndex has two well-separated 3-dim clusters: a pure security cluster
// around the x axis and an impure resource cluster around the y axis.
func testIndex() *Index {
	return &Index{
		Version:       "2026-08-01",
		Dim:           3,
		ExemplarCount: 200,
		Clusters: []Cluster{
			{
				ID:       "c-security",
				Label:    "Security Alert",
				Purity:   0.94,
				Radius:   0.3,
				Size:     120,
				Centroid: []float32{1, 0, 0},
			},
			{
				ID:       "c-resource",
				Label:    "Resource Usage",
				Purity:   0.40,
				Radius:   0.3,
				Size:     80,
				Centroid: []float32{0, 1, 0},
			},
		},
	}
}

func TestClassifyInsidePureCluster(t *testing.T) {
	t.Parallel()

	c := New(&stubEmbedder{vec: []float32{0.98, 0.05, 0}}, NewHolder(testIndex()), Options{})
	out, ok, err := c.Classify(context.Background(), "failed login storm")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !ok {
		t.Fatal("want definitive answer")
	}
	if out.Category != classify.SecurityAlert {
		t.Fatalf("category = %q, want %q", out.Category, classify.SecurityAlert)
	}
	if out.Confidence != 0.94 {
		t.Fatalf("confidence = %v, want cluster purity 0.94", out.Confidence)
	}
	if len(out.Signals) != 1 || out.Signals[0] != "c-security" {
		t.Fatalf("signals = %v, want cluster id", out.Signals)
	}
}

func TestClassifyNoisePointFallsThrough(t *testing.T) {
	t.Parallel()

	// Equidistant from both centroids and outside both radii.
	c := New(&stubEmbedder{vec: []float32{0, 0, 1}}, NewHolder(testIndex()), Options{})
	_, ok, err := c.Classify(context.Background(), "unrelated message")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ok {
		t.Fatal("noise point should fall through")
	}
}

func TestClassifyImpureClusterFallsThrough(t *testing.T) {
	t.Parallel()

	// Inside the resource cluster's radius, but purity 0.40 is below the
	// default confidence floor.
	c := New(&stubEmbedder{vec: []float32{0.03, 0.99, 0}}, NewHolder(testIndex()), Options{})
	_, ok, err := c.Classify(context.Background(), "some resource message")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ok {
		t.Fatal("impure cluster should fall through")
	}
}

func TestClassifySkipsWhenIndexTooSmall(t *testing.T) {
	t.Parallel()

	idx := testIndex()
	idx.ExemplarCount = 10

	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	c := New(emb, NewHolder(idx), Options{MinExemplars: 25})
	_, ok, err := c.Classify(context.Background(), "msg")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ok {
		t.Fatal("undertrained index should be skipped")
	}
}

func TestClassifySkipsWithoutIndex(t *testing.T) {
	t.Parallel()

	c := New(&stubEmbedder{vec: []float32{1, 0, 0}}, NewHolder(nil), Options{})
	_, ok, err := c.Classify(context.Background(), "msg")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if ok {
		t.Fatal("no index loaded, stage should be skipped")
	}
}

func TestClassifyEmbedderErrorSurfaced(t *testing.T) {
	t.Parallel()

	c := New(&stubEmbedder{err: errors.New("connection refused")}, NewHolder(testIndex()), Options{})
	_, ok, err := c.Classify(context.Background(), "msg")
	if err == nil {
		t.Fatal("want embedder error surfaced")
	}
	if ok {
		t.Fatal("want ok=false on error")
	}
}

func TestClassifyDimensionMismatch(t *testing.T) {
	t.Parallel()

	c := New(&stubEmbedder{vec: []float32{1, 0}}, NewHolder(testIndex()), Options{})
	_, ok, err := c.Classify(context.Background(), "msg")
	if err == nil || ok {
		t.Fatalf("ok=%v err=%v, want dimension error", ok, err)
	}
}

func TestHolderHotSwap(t *testing.T) {
	t.Parallel()

	h := NewHolder(nil)
	if h.Active() != nil {
		t.Fatal("empty holder should report nil")
	}

	first := testIndex()
	h.Swap(first)
	if got := h.Active(); got != first {
		t.Fatal("active index not the swapped one")
	}

	second := testIndex()
	second.Version = "2026-08-15"
	h.Swap(second)
	if got := h.Active(); got.Version != "2026-08-15" {
		t.Fatalf("active version = %q, want the new snapshot", got.Version)
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched dims", []float32{1, 0}, []float32{1, 0, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
	}
	for _, tc := range tests {
		got := cosineDistance(tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: cosineDistance = %v, want %v", tc.name, got, tc.want)
		}
	}
}
