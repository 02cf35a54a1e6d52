// Package index is the local vector index: a brute-force cosine search over
// immutable entries, persisted as a directory on disk.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"sort"

	"github.com/bull/civic-assistant/internal/config"
)

var (
	// ErrIndexNotFound is returned when the index directory is missing or
	// structurally invalid. It wraps fs.ErrNotExist.
	ErrIndexNotFound = fmt.Errorf("index not found: %w", fs.ErrNotExist)

	// ErrDimensionMismatch is returned when vectors of different lengths meet.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metadata traces an entry back to its place in the source document.
type Metadata struct {
	Source  string
	Page    int
	Section string
}

// Entry pairs a chunk's text with its embedding.
type Entry struct {
	Position int // insertion order, used to break score ties
	Text     string
	Metadata Metadata
	Vector   []float32
}

// Result is one search hit.
type Result struct {
	Position int
	Text     string
	Score    float64
	Metadata Metadata
}

// Index is immutable after Build and safe for concurrent searches.
type Index struct {
	entries  []Entry
	norms    []float64
	dim      int
	manifest Manifest
}

// Build creates an index from entries. Positions are reassigned from the
// slice order. All vectors must share one non-zero dimension.
func Build(entries []Entry) (*Index, error) {
	idx := &Index{
		entries: make([]Entry, len(entries)),
		norms:   make([]float64, len(entries)),
	}

	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%w: entry %d has no vector", ErrDimensionMismatch, i)
		}
		if i == 0 {
			idx.dim = len(e.Vector)
		} else if len(e.Vector) != idx.dim {
			return nil, fmt.Errorf("%w: entry %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(e.Vector), idx.dim)
		}
		e.Position = i
		idx.entries[i] = e
		idx.norms[i] = norm(e.Vector)
	}
	return idx, nil
}

// Len returns the number of entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Dimension returns the vector length, or 0 for an empty index.
func (idx *Index) Dimension() int { return idx.dim }

// Manifest describes the index as it was saved or loaded. It is the zero
// value for an index that has only been built.
func (idx *Index) Manifest() Manifest { return idx.manifest }

// Search returns the k entries most similar to query by cosine similarity,
// best first. Equal scores keep insertion order. If k exceeds the number of
// entries, all entries are returned.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", config.ErrConfig, k)
	}
	if len(idx.entries) == 0 {
		return []Result{}, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), idx.dim)
	}

	qnorm := norm(query)
	results := make([]Result, len(idx.entries))
	for i, e := range idx.entries {
		results[i] = Result{
			Position: e.Position,
			Text:     e.Text,
			Score:    cosine(query, e.Vector, qnorm, idx.norms[i]),
			Metadata: e.Metadata,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results[:min(k, len(results))], nil
}

func cosine(a, b []float32, anorm, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
