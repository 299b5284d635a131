package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/propsearch/internal/domain"
	dombatch "github.com/kailas-cloud/propsearch/internal/domain/batch"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// Defaults for Options.
const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// Options tunes embedding throughput.
type Options struct {
	BatchSize int
	Workers   int
}

// Request describes one ingestion run.
type Request struct {
	Source  string
	Output  string
	Schema  record.Schema
	Publish bool
}

// Summary reports what a run produced. Results follow source order.
type Summary struct {
	Total     int
	Embedded  int
	Dimension int
	Published bool
	Results   []dombatch.Result
}

// Skipped returns the results of records left out of the artifact.
func (s Summary) Skipped() []dombatch.Result {
	var out []dombatch.Result
	for _, r := range s.Results {
		if r.Status() == dombatch.StatusSkipped {
			out = append(out, r)
		}
	}
	return out
}

// Service turns a source file into an embedded artifact.
type Service struct {
	source    SourceLoader
	artifacts ArtifactSaver
	publisher Publisher
	embed     domain.Embedder
	opts      Options
	logger    *zap.Logger
}

// New creates an ingestion service. publisher can be nil.
func New(
	source SourceLoader, artifacts ArtifactSaver, publisher Publisher,
	embed domain.Embedder, opts Options, logger *zap.Logger,
) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Service{
		source: source, artifacts: artifacts, publisher: publisher,
		embed: embed, opts: opts, logger: logger,
	}
}

// Run loads req.Source, embeds every record with text and saves the embedded
// records to req.Output. Records that cannot be embedded are skipped and
// reported; only source, persistence and cancellation errors fail the run.
func (s *Service) Run(ctx context.Context, req Request) (Summary, error) {
	start := time.Now()
	defer func() { metrics.IngestRunDuration.Observe(time.Since(start).Seconds()) }()

	src, err := s.source.LoadSource(ctx, req.Source, req.Schema)
	if err != nil {
		return Summary{}, fmt.Errorf("load source: %w", err)
	}

	records := src.Records()
	results := make([]dombatch.Result, len(records))
	vectors := make([][]float32, len(records))

	pending := make([]int, 0, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Text()) == "" {
			results[i] = dombatch.NewSkipped(r.ID(), dombatch.ReasonEmptyText, nil)
			continue
		}
		pending = append(pending, i)
	}

	if err := s.embedAll(ctx, records, pending, vectors, results); err != nil {
		return Summary{}, err
	}

	dim := checkDimensions(records, vectors, results)

	embedded := make([]record.Record, 0, len(pending))
	for i, r := range records {
		if results[i].Status() == dombatch.StatusEmbedded {
			embedded = append(embedded, r.WithVector(vectors[i]))
		}
	}

	summary := Summary{
		Total:     len(records),
		Embedded:  len(embedded),
		Dimension: dim,
		Results:   results,
	}
	s.record(req, summary)

	if len(embedded) == 0 {
		return summary, fmt.Errorf("no records embedded from %s: %w", req.Source, domain.ErrEmptyCorpus)
	}

	out, err := domcorpus.New(embedded)
	if err != nil {
		return summary, fmt.Errorf("build artifact corpus: %w", err)
	}
	if err := s.artifacts.Save(ctx, req.Output, out); err != nil {
		return summary, fmt.Errorf("save artifact: %w", err)
	}

	if req.Publish && s.publisher != nil {
		if err := s.publisher.Publish(ctx, out); err != nil {
			return summary, fmt.Errorf("publish corpus: %w", err)
		}
		summary.Published = true
	}

	return summary, nil
}

// embedAll embeds pending positions in batches on a bounded worker group.
// Each batch writes only its own slots, so output order is source order.
func (s *Service) embedAll(
	ctx context.Context, records []record.Record, pending []int,
	vectors [][]float32, results []dombatch.Result,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for lo := 0; lo < len(pending); lo += s.opts.BatchSize {
		batch := pending[lo:min(lo+s.opts.BatchSize, len(pending))]
		g.Go(func() error {
			return s.embedBatch(gctx, records, batch, vectors, results)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("embed records: %w", err)
	}
	return nil
}

func (s *Service) embedBatch(
	ctx context.Context, records []record.Record, batch []int,
	vectors [][]float32, results []dombatch.Result,
) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // cancellation passes through
	}

	texts := make([]string, len(batch))
	for i, pos := range batch {
		texts[i] = records[pos].Text()
	}

	res, err := domain.BatchEmbed(ctx, s.embed, texts)
	if err == nil && len(res.Embeddings) == len(batch) {
		metrics.IngestBatchesTotal.WithLabelValues("ok").Inc()
		for i, pos := range batch {
			s.accept(records[pos], pos, res.Embeddings[i], vectors, results)
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr //nolint:wrapcheck // cancellation passes through
	}

	metrics.IngestBatchesTotal.WithLabelValues("retried").Inc()
	s.logger.Warn("Batch embedding failed, retrying per record",
		zap.Int("batch_size", len(batch)),
		zap.Error(err),
	)

	for _, pos := range batch {
		one, err := s.embed.Embed(ctx, records[pos].Text())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr //nolint:wrapcheck // cancellation passes through
			}
			results[pos] = dombatch.NewSkipped(records[pos].ID(), dombatch.ReasonEmbeddingError, err)
			s.logger.Warn("Record skipped",
				zap.String("id", records[pos].ID()),
				zap.String("reason", string(dombatch.ReasonEmbeddingError)),
				zap.Error(err),
			)
			continue
		}
		s.accept(records[pos], pos, one.Embedding, vectors, results)
	}
	return nil
}

func (s *Service) accept(r record.Record, pos int, vec []float32, vectors [][]float32, results []dombatch.Result) {
	if len(vec) == 0 {
		results[pos] = dombatch.NewSkipped(r.ID(), dombatch.ReasonEmbeddingError,
			fmt.Errorf("provider returned an empty vector: %w", domain.ErrEmbedding))
		return
	}
	vectors[pos] = vec
	results[pos] = dombatch.NewEmbedded(r.ID())
}

// checkDimensions skips vectors whose length differs from the first embedded
// vector in source order and returns that reference length.
func checkDimensions(records []record.Record, vectors [][]float32, results []dombatch.Result) int {
	dim := 0
	for i, r := range records {
		if results[i].Status() != dombatch.StatusEmbedded {
			continue
		}
		if dim == 0 {
			dim = len(vectors[i])
			continue
		}
		if len(vectors[i]) != dim {
			results[i] = dombatch.NewSkipped(r.ID(), dombatch.ReasonDimensionMismatch,
				fmt.Errorf("got %d dimensions, want %d: %w", len(vectors[i]), dim, domain.ErrDimensionMismatch))
		}
	}
	return dim
}

func (s *Service) record(req Request, summary Summary) {
	metrics.IngestRecordsTotal.WithLabelValues(string(dombatch.StatusEmbedded)).Add(float64(summary.Embedded))

	skipped := summary.Skipped()
	ids := make([]string, len(skipped))
	for i, r := range skipped {
		ids[i] = r.ID()
		metrics.IngestRecordsTotal.WithLabelValues(string(r.Reason())).Inc()
		if r.Reason() != dombatch.ReasonEmbeddingError {
			s.logger.Info("Record skipped",
				zap.String("id", r.ID()),
				zap.String("reason", string(r.Reason())),
			)
		}
	}

	s.logger.Info("Ingestion finished",
		zap.String("source", req.Source),
		zap.String("output", req.Output),
		zap.Int("total", summary.Total),
		zap.Int("embedded", summary.Embedded),
		zap.Int("skipped", len(skipped)),
		zap.Strings("skipped_ids", ids),
		zap.Int("dimensions", summary.Dimension),
	)
}
