package ingest

import (
	"context"

	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

// SourceLoader reads raw records from an ingestion source.
type SourceLoader interface {
	LoadSource(ctx context.Context, path string, schema record.Schema) (*domcorpus.Corpus, error)
}

// ArtifactSaver persists an embedded corpus.
type ArtifactSaver interface {
	Save(ctx context.Context, path string, c *domcorpus.Corpus) error
}

// Publisher pushes an embedded corpus to an external vector store.
type Publisher interface {
	Publish(ctx context.Context, c *domcorpus.Corpus) error
}
