package index

import (
	"errors"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

func TestSearch_TwoDimensionalExample(t *testing.T) {
	idx, err := Build([][]float32{{0, 0}, {10, 0}, {0, 10}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []Neighbor{{Position: 0, Distance: 1}, {Position: 1, Distance: 81}}
	if len(got) != len(want) {
		t.Fatalf("got %d neighbors, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("neighbor %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
		want    error
	}{
		{"empty", nil, domain.ErrEmptyCorpus},
		{"mismatch", [][]float32{{1, 2}, {1, 2, 3}}, domain.ErrDimensionMismatch},
		{"zero dimension", [][]float32{{}, {}}, domain.ErrDimensionMismatch},
		{"missing vector", [][]float32{{1, 2}, nil}, domain.ErrDimensionMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.vectors)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Build() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	idx, _ := Build([][]float32{{1, 2}})

	if _, err := idx.Search([]float32{1, 2}, 0); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("k=0: expected ErrInvalidQuery, got %v", err)
	}
	if _, err := idx.Search([]float32{1, 2}, -3); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("k<0: expected ErrInvalidQuery, got %v", err)
	}
	if _, err := idx.Search([]float32{1}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("dim: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_KLargerThanCorpus(t *testing.T) {
	idx, _ := Build([][]float32{{0}, {5}, {1}})
	got, err := idx.Search([]float32{0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(got))
	}
	if got[0].Position != 0 || got[1].Position != 2 || got[2].Position != 1 {
		t.Errorf("unexpected order %+v", got)
	}
}

func TestSearch_TiesByPosition(t *testing.T) {
	idx, _ := Build([][]float32{{1}, {-1}, {1}, {-1}})
	got, err := idx.Search([]float32{0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, want := range []int{0, 1, 2} {
		if got[i].Position != want {
			t.Errorf("neighbor %d position = %d, want %d", i, got[i].Position, want)
		}
	}
}

func TestSearch_SelfMatch(t *testing.T) {
	vecs := randomVectors(50, 8, 1)
	idx, _ := Build(vecs)
	for i, v := range vecs {
		got, err := idx.Search(v, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got[0].Position != i || got[0].Distance != 0 {
			t.Errorf("self-match for %d = %+v", i, got[0])
		}
	}
}

func TestSearch_MatchesBruteForce(t *testing.T) {
	vecs := randomVectors(200, 16, 2)
	idx, _ := Build(vecs)
	query := randomVectors(1, 16, 3)[0]

	all := make([]Neighbor, len(vecs))
	for i, v := range vecs {
		all[i] = Neighbor{Position: i, Distance: squaredL2(query, v)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Distance < all[j].Distance })

	got, err := idx.Search(query, 7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := range got {
		if got[i] != all[i] {
			t.Errorf("neighbor %d = %+v, want %+v", i, got[i], all[i])
		}
	}
}

func TestBuild_CopiesVectors(t *testing.T) {
	vecs := [][]float32{{0, 0}, {3, 4}}
	idx, _ := Build(vecs)
	vecs[0][0] = 100

	got, _ := idx.Search([]float32{0, 0}, 1)
	if got[0].Position != 0 || got[0].Distance != 0 {
		t.Errorf("index must not observe caller mutation, got %+v", got[0])
	}
	if idx.Dim() != 2 || idx.Len() != 2 {
		t.Errorf("Dim=%d Len=%d", idx.Dim(), idx.Len())
	}
}

func randomVectors(n, dim int, seed uint64) [][]float32 {
	r := rand.New(rand.NewPCG(seed, seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}
