// Package semantic implements the second cascade stage: an embedding-based
// classifier over a precomputed, versioned index of density clusters built
// offline from labeled exemplar messages.
package semantic

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/linnemanlabs/klaxon/internal/classify"
)

// Cluster is one density cluster from the offline build: its dominant label,
// the share of member exemplars carrying that label (purity), and the
// acceptance radius in cosine distance around the centroid.
type Cluster struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Purity   float64   `json:"purity"`
	Radius   float64   `json:"radius"`
	Size     int       `json:"size"`
	Centroid []float32 `json:"centroid"`
}

// Index is a read-only snapshot of the cluster space. Indexes are rebuilt
// offline and hot-swapped whole; nothing mutates one after load.
type Index struct {
	Version       string    `json:"version"`
	Dim           int       `json:"dim"`
	ExemplarCount int       `json:"exemplar_count"`
	Clusters      []Cluster `json:"clusters"`
}

// LoadIndex reads and validates an index artifact from disk.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return &idx, nil
}

func (idx *Index) validate() error {
	if idx.Version == "" {
		return fmt.Errorf("missing version")
	}
	if idx.Dim <= 0 {
		return fmt.Errorf("invalid dimension %d", idx.Dim)
	}
	for i, c := range idx.Clusters {
		if len(c.Centroid) != idx.Dim {
			return fmt.Errorf("cluster %d (%s): centroid dim %d, want %d", i, c.ID, len(c.Centroid), idx.Dim)
		}
		if c.Purity < 0 || c.Purity > 1 {
			return fmt.Errorf("cluster %d (%s): purity %v outside [0,1]", i, c.ID, c.Purity)
		}
		if c.Radius < 0 {
			return fmt.Errorf("cluster %d (%s): negative radius", i, c.ID)
		}
		if _, err := classify.ParseCategory(c.Label); err != nil {
			return fmt.Errorf("cluster %d (%s): %w", i, c.ID, err)
		}
	}
	return nil
}

// Nearest returns the cluster with the smallest cosine distance to vec, and
// that distance. ok is false when the index has no clusters.
func (idx *Index) Nearest(vec []float32) (best *Cluster, dist float64, ok bool) {
	dist = 2 // max cosine distance
	for i := range idx.Clusters {
		d := cosineDistance(vec, idx.Clusters[i].Centroid)
		if d < dist {
			dist = d
			best = &idx.Clusters[i]
			ok = true
		}
	}
	return best, dist, ok
}

// Holder owns the active index and supports atomic hot swap by version.
// Readers always see a complete index or none.
type Holder struct {
	ptr atomic.Pointer[Index]
}

// NewHolder returns a Holder, optionally seeded with an initial index.
func NewHolder(initial *Index) *Holder {
	h := &Holder{}
	if initial != nil {
		h.ptr.Store(initial)
	}
	return h
}

// Active returns the current index, or nil when none is loaded.
func (h *Holder) Active() *Index {
	return h.ptr.Load()
}

// Swap installs a new index snapshot atomically.
func (h *Holder) Swap(idx *Index) {
	h.ptr.Store(idx)
}
