package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

type mockSource struct {
	corpus *domcorpus.Corpus
	err    error
}

func (m *mockSource) LoadSource(_ context.Context, _ string, _ record.Schema) (*domcorpus.Corpus, error) {
	return m.corpus, m.err
}

type mockSaver struct {
	mu    sync.Mutex
	saved *domcorpus.Corpus
	path  string
	err   error
}

func (m *mockSaver) Save(_ context.Context, path string, c *domcorpus.Corpus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved, m.path = c, path
	return m.err
}

type mockPublisher struct {
	published *domcorpus.Corpus
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, c *domcorpus.Corpus) error {
	m.published = c
	return m.err
}

// mockEmbedder maps each text to a deterministic vector. Texts containing
// "poison" fail, and any batch containing one fails as a whole.
type mockEmbedder struct {
	mu         sync.Mutex
	dims       map[string]int
	batchCalls int
	singleCall int
	cancel     context.CancelFunc
}

func (m *mockEmbedder) vector(text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		if m.cancel != nil {
			m.cancel()
		}
		return nil, fmt.Errorf("rejected %q: %w", text, domain.ErrEmbedding)
	}
	dim := 3
	if d, ok := m.dims[text]; ok {
		dim = d
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v, nil
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.singleCall++
	m.mu.Unlock()
	v, err := m.vector(text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: v}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.batchCalls++
	m.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.vector(t)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out[i] = v
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func sourceCorpus(t *testing.T, texts ...string) *domcorpus.Corpus {
	t.Helper()
	records := make([]record.Record, len(texts))
	for i, text := range texts {
		r, err := record.New(fmt.Sprintf("lst-%02d", i), text, map[string]any{"title": text})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		records[i] = r
	}
	c, err := domcorpus.New(records)
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	return c
}
