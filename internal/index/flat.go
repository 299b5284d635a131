// Package index implements an exact in-memory nearest-neighbor index.
package index

import (
	"container/heap"
	"fmt"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// Neighbor is one search hit: the corpus position and its squared L2 distance.
type Neighbor struct {
	Position int
	Distance float64
}

// Flat is an exhaustive squared-Euclidean index. It is read-only after Build
// and safe for concurrent searches.
type Flat struct {
	dim  int
	data []float32 // row-major, n*dim
	n    int
}

// Build copies vectors into a new index. All vectors must share one non-zero dimension.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("build index: %w", domain.ErrEmptyCorpus)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("build index: vector 0 is empty: %w", domain.ErrDimensionMismatch)
	}

	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("build index: vector %d has dimension %d, want %d: %w",
				i, len(v), dim, domain.ErrDimensionMismatch)
		}
		data = append(data, v...)
	}
	return &Flat{dim: dim, data: data, n: len(vectors)}, nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return f.n }

// Search returns the min(k, Len) nearest vectors to query, ordered by ascending
// distance with ties broken by ascending position.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidQuery)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d: %w",
			len(query), f.dim, domain.ErrDimensionMismatch)
	}
	k = min(k, f.n)

	h := make(maxHeap, 0, k)
	for i := range f.n {
		d := squaredL2(query, f.data[i*f.dim:(i+1)*f.dim])
		nb := Neighbor{Position: i, Distance: d}
		if len(h) < k {
			heap.Push(&h, nb)
			continue
		}
		if closer(nb, h[0]) {
			h[0] = nb
			heap.Fix(&h, 0)
		}
	}

	out := make([]Neighbor, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Neighbor) //nolint:forcetypeassert // heap holds only Neighbor
	}
	return out, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// closer reports whether a ranks before b.
func closer(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Position < b.Position
}

// maxHeap keeps the current worst neighbor at the root.
type maxHeap []Neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) } //nolint:forcetypeassert // heap.Interface

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
