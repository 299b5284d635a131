package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
)

// --- Mocks ---

type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", ctx.Err())
		}
	}
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		return domain.EmbeddingResult{}, fmt.Errorf("no vector for %q: %w", text, domain.ErrEmbedding)
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

type mockLoader struct {
	corpus *domcorpus.Corpus
	err    error
}

func (m *mockLoader) LoadArtifact(_ context.Context, _ string) (*domcorpus.Corpus, error) {
	return m.corpus, m.err
}

func newCorpus(t *testing.T, vectors map[string][]float32, order ...string) *domcorpus.Corpus {
	t.Helper()
	records := make([]record.Record, len(order))
	for i, text := range order {
		records[i] = record.Reconstruct(fmt.Sprintf("r%d", i), text, map[string]any{"title": text}, vectors[text])
	}
	c, err := domcorpus.New(records)
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	return c
}

func planeFixture(t *testing.T) (*Service, *mockEmbedder) {
	t.Helper()
	vectors := map[string][]float32{
		"origin":  {0, 0},
		"east":    {1, 0},
		"far":     {10, 10},
		"query":   {0, 1},
		"another": {9, 9},
	}
	emb := &mockEmbedder{vectors: vectors}
	svc := New(emb, Options{MaxK: 10}, zap.NewNop())
	if err := svc.Load(newCorpus(t, vectors, "origin", "east", "far")); err != nil {
		t.Fatalf("load: %v", err)
	}
	return svc, emb
}

// --- Tests ---

func TestFindBestMatch_NearestFirst(t *testing.T) {
	svc, _ := planeFixture(t)

	matches, err := svc.FindBestMatch(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Position() != 0 || matches[0].Distance() != 1 {
		t.Errorf("first match = (%d, %v), want (0, 1)", matches[0].Position(), matches[0].Distance())
	}
	if matches[1].Position() != 1 || matches[1].Distance() != 2 {
		t.Errorf("second match = (%d, %v), want (1, 2)", matches[1].Position(), matches[1].Distance())
	}
	if matches[0].Record().Text() != "origin" {
		t.Errorf("expected record text origin, got %q", matches[0].Record().Text())
	}
}

func TestFindBestMatch_SelfMatch(t *testing.T) {
	svc, _ := planeFixture(t)

	matches, err := svc.FindBestMatch(context.Background(), "far", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches[0].ID() != "r2" || matches[0].Distance() != 0 {
		t.Errorf("expected r2 at distance 0, got %s at %v", matches[0].ID(), matches[0].Distance())
	}
}

func TestFindBestMatch_DefaultK(t *testing.T) {
	svc, _ := planeFixture(t)

	matches, err := svc.FindBestMatch(context.Background(), "another", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID() != "r2" {
		t.Errorf("expected single match r2, got %v", matches)
	}
}

func TestFindBestMatch_ClampsK(t *testing.T) {
	svc, _ := planeFixture(t)
	svc.opts.MaxK = 2

	matches, err := svc.FindBestMatch(context.Background(), "query", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected clamp to 2, got %d", len(matches))
	}
}

func TestFindBestMatch_KAboveCorpus(t *testing.T) {
	svc, _ := planeFixture(t)

	matches, err := svc.FindBestMatch(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("expected all 3 records, got %d", len(matches))
	}
}

func TestFindBestMatch_InvalidQuery(t *testing.T) {
	svc, emb := planeFixture(t)
	long := make([]byte, MaxQueryBytes+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name  string
		query string
		k     int
	}{
		{"empty", "", 1},
		{"blank", " \t\n", 1},
		{"too long", string(long), 1},
		{"negative k", "query", -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.FindBestMatch(context.Background(), tc.query, tc.k)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Errorf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
	if emb.calls.Load() != 0 {
		t.Errorf("embedder must not be called for invalid input, got %d calls", emb.calls.Load())
	}
}

func TestFindBestMatch_NoSnapshot(t *testing.T) {
	svc := New(&mockEmbedder{}, Options{}, zap.NewNop())

	_, err := svc.FindBestMatch(context.Background(), "query", 1)
	if !errors.Is(err, domain.ErrEmptyCorpus) {
		t.Errorf("expected ErrEmptyCorpus, got %v", err)
	}
	if svc.Ready() {
		t.Error("service must not be ready without a snapshot")
	}
}

func TestFindBestMatch_EmbeddingError(t *testing.T) {
	svc, emb := planeFixture(t)
	emb.err = fmt.Errorf("provider down: %w", domain.ErrEmbedding)

	_, err := svc.FindBestMatch(context.Background(), "query", 1)
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestFindBestMatch_DimensionMismatch(t *testing.T) {
	svc, emb := planeFixture(t)
	emb.vectors["wide"] = []float32{1, 2, 3}

	_, err := svc.FindBestMatch(context.Background(), "wide", 1)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFindBestMatch_ConcurrentDuplicatesShareEmbedding(t *testing.T) {
	svc, emb := planeFixture(t)
	emb.block = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matches, err := svc.FindBestMatch(context.Background(), "query", 1)
			if err == nil && matches[0].ID() != "r0" {
				err = fmt.Errorf("unexpected match %s", matches[0].ID())
			}
			results <- err
		}()
	}
	// Let the first call reach the embedder before releasing it.
	for emb.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(emb.block)
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Errorf("caller failed: %v", err)
		}
	}
	if n := emb.calls.Load(); n < 1 || n > callers {
		t.Errorf("unexpected embed call count %d", n)
	}
}

func waitForCalls(t *testing.T, emb *mockEmbedder, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for emb.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("embedder reached %d calls, want %d", emb.calls.Load(), n)
		}
		runtime.Gosched()
	}
}

func TestFindBestMatch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	svc, emb := planeFixture(t)
	emb.block = make(chan struct{})

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.FindBestMatch(ctx1, "query", 1)
		first <- err
	}()
	waitForCalls(t, emb, 1)

	type outcome struct {
		id  string
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		matches, err := svc.FindBestMatch(context.Background(), "query", 1)
		if err != nil {
			second <- outcome{err: err}
			return
		}
		second <- outcome{id: matches[0].ID()}
	}()

	cancel1()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(emb.block)

	got := <-second
	if got.err != nil {
		t.Fatalf("live caller failed: %v", got.err)
	}
	if got.id != "r0" {
		t.Errorf("live caller matched %s, want r0", got.id)
	}
}

func TestFindBestMatch_ReloadStartsFreshCall(t *testing.T) {
	svc, emb := planeFixture(t)
	emb.block = make(chan struct{})

	before := make(chan []string, 1)
	go func() {
		matches, _ := svc.FindBestMatch(context.Background(), "query", 1)
		before <- ids(matches)
	}()
	waitForCalls(t, emb, 1)

	// Reversed order: "origin" now sits at position 1.
	if err := svc.Load(newCorpus(t, emb.vectors, "far", "origin")); err != nil {
		t.Fatalf("reload: %v", err)
	}
	after := make(chan []string, 1)
	go func() {
		matches, _ := svc.FindBestMatch(context.Background(), "query", 1)
		after <- ids(matches)
	}()
	waitForCalls(t, emb, 2)
	close(emb.block)

	if got := <-before; len(got) != 1 || got[0] != "r0" {
		t.Errorf("query on old snapshot = %v, want [r0]", got)
	}
	if got := <-after; len(got) != 1 || got[0] != "r1" {
		t.Errorf("query on new snapshot = %v, want [r1]", got)
	}
}

func ids(matches []result.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID()
	}
	return out
}

func TestNew_DefaultKFromOptions(t *testing.T) {
	vectors := map[string][]float32{"a": {0}, "b": {1}, "c": {2}}
	svc := New(&mockEmbedder{vectors: vectors}, Options{DefaultK: 2, MaxK: 5}, zap.NewNop())
	if err := svc.Load(newCorpus(t, vectors, "a", "b", "c")); err != nil {
		t.Fatalf("load: %v", err)
	}

	matches, err := svc.FindBestMatch(context.Background(), "a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected default of 2 matches, got %d", len(matches))
	}
}

func TestLoad_KeepsPreviousSnapshotOnError(t *testing.T) {
	svc, _ := planeFixture(t)

	broken := newCorpus(t, map[string][]float32{"a": {1, 2}, "b": {1}}, "a", "b")
	if err := svc.Load(broken); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if svc.Size() != 3 {
		t.Errorf("expected previous snapshot of 3 records, got %d", svc.Size())
	}
}

func TestLoadArtifact(t *testing.T) {
	vectors := map[string][]float32{"only": {1, 1}}
	svc := New(&mockEmbedder{vectors: vectors}, Options{}, zap.NewNop())

	err := svc.LoadArtifact(context.Background(), &mockLoader{corpus: newCorpus(t, vectors, "only")}, "x.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.Ready() || svc.Size() != 1 {
		t.Errorf("expected ready service with 1 record, got ready=%v size=%d", svc.Ready(), svc.Size())
	}

	loadErr := fmt.Errorf("missing: %w", domain.ErrDataFormat)
	err = svc.LoadArtifact(context.Background(), &mockLoader{err: loadErr}, "x.json")
	if !errors.Is(err, domain.ErrDataFormat) {
		t.Errorf("expected ErrDataFormat, got %v", err)
	}
}
