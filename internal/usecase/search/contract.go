package search

import (
	"context"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ArtifactLoader reads a persisted, embedded corpus.
type ArtifactLoader interface {
	LoadArtifact(ctx context.Context, path string) (*domcorpus.Corpus, error)
}
