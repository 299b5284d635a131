package propsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	corpusrepo "github.com/kailas-cloud/propsearch/internal/repository/corpus"
	healthuc "github.com/kailas-cloud/propsearch/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/propsearch/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/propsearch/internal/usecase/search"
)

// Internal interfaces, swapped for fakes in tests.
type ingestUseCase interface {
	Run(ctx context.Context, req ingestuc.Request) (ingestuc.Summary, error)
}

type searchUseCase interface {
	FindBestMatch(ctx context.Context, query string, k int) ([]result.Match, error)
	LoadArtifact(ctx context.Context, loader searchuc.ArtifactLoader, path string) error
	Size() int
}

// Client is the propsearch SDK entry point. It is safe for concurrent use;
// Load swaps the index without blocking running searches.
type Client struct {
	artifacts searchuc.ArtifactLoader
	ingestSvc ingestUseCase
	searchSvc searchUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client with no index loaded.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.embedder == nil {
		return nil, errors.New("propsearch: embedder required (use WithEmbedder)")
	}
	if cfg.maxK > 0 && cfg.defaultK > cfg.maxK {
		return nil, fmt.Errorf("propsearch: default k %d exceeds max k %d", cfg.defaultK, cfg.maxK)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return wireClient(cfg, obs), nil
}

func wireClient(cfg *clientConfig, obs *observer) *Client {
	logger := zap.NewNop()
	repo := corpusrepo.New()

	emb := &embedderAdapter{inner: cfg.embedder}
	var document, query domain.Embedder = emb, emb
	if cfg.documentInstruction != "" {
		document = domain.NewInstructionEmbedder(emb, cfg.documentInstruction)
	}
	if cfg.queryInstruction != "" {
		query = domain.NewInstructionEmbedder(emb, cfg.queryInstruction)
	}

	searchSvc := searchuc.New(query, searchuc.Options{
		DefaultK: cfg.defaultK,
		MaxK:     cfg.maxK,
	}, logger)
	ingestSvc := ingestuc.New(repo, repo, nil, document, ingestuc.Options{
		BatchSize: cfg.batchSize,
		Workers:   cfg.workers,
	}, logger)

	return &Client{
		artifacts: repo,
		ingestSvc: ingestSvc,
		searchSvc: searchSvc,
		healthSvc: healthuc.New(emb, nil, searchSvc),
		obs:       obs,
	}
}

// Ingest embeds every record of req.Source and writes the artifact to req.Output.
// Records without text or whose embedding fails are reported in the summary,
// not returned as errors.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (summary IngestSummary, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("ingest", start, err, "source", req.Source, "embedded", summary.Embedded)
	}()

	schema, err := record.NewSchema(record.Shape(req.Shape), req.IDField, req.Fields, req.Separator)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("ingest: %w", err)
	}
	res, err := c.ingestSvc.Run(ctx, ingestuc.Request{
		Source: req.Source,
		Output: req.Output,
		Schema: schema,
	})
	if err != nil {
		return IngestSummary{}, fmt.Errorf("ingest: %w", err)
	}
	return toSummary(res), nil
}

// Load reads an artifact and replaces the searchable index with it.
// On error the previously loaded index stays active.
func (c *Client) Load(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("load", start, err, "path", path) }()

	if err = c.searchSvc.LoadArtifact(ctx, c.artifacts, path); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	c.obs.indexLoaded(c.searchSvc.Size())
	return nil
}

// Search returns up to k records closest to query, nearest first.
// k=0 selects the configured default.
func (c *Client) Search(ctx context.Context, query string, k int) (hits []Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err, "k", k, "hits", len(hits)) }()

	matches, err := c.searchSvc.FindBestMatch(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits = make([]Hit, len(matches))
	for i, m := range matches {
		r := m.Record()
		hits[i] = Hit{
			ID:       r.ID(),
			Text:     r.Text(),
			Distance: m.Distance(),
			Fields:   r.Attributes(),
		}
	}
	return hits, nil
}

// Size returns the number of records in the loaded index.
func (c *Client) Size() int { return c.searchSvc.Size() }

func toSummary(s ingestuc.Summary) IngestSummary {
	out := IngestSummary{
		Total:     s.Total,
		Embedded:  s.Embedded,
		Dimension: s.Dimension,
	}
	for _, r := range s.Skipped() {
		out.Skipped = append(out.Skipped, Skip{
			ID:     r.ID(),
			Reason: string(r.Reason()),
			Err:    r.Err(),
		})
	}
	return out
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder,
// domain.BatchEmbedder and the health checker contract.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbedding, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	r, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w: %w", domain.ErrEmbedding, err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent adapter
	}
	return nil
}
