package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/index"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// Query limits.
const (
	MaxQueryBytes = 4096
	DefaultK      = 1
	DefaultMaxK   = 100

	// DefaultSharedTimeout bounds a shared query once it no longer follows any single caller.
	DefaultSharedTimeout = 30 * time.Second
)

// Options bounds the number of results per query.
type Options struct {
	DefaultK int
	MaxK     int
	// SharedTimeout caps the embed+search call shared by identical queries.
	SharedTimeout time.Duration
}

// snapshot pairs a corpus with the index built from it. Immutable once published.
type snapshot struct {
	gen    uint64
	corpus *domcorpus.Corpus
	index  *index.Flat
}

// Service answers nearest-neighbor queries over the current snapshot.
// Load publishes a new snapshot atomically; readers never block.
type Service struct {
	embed  Embedder
	opts   Options
	snap   atomic.Pointer[snapshot]
	gen    atomic.Uint64
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a search service with no snapshot loaded.
func New(embed Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultMaxK
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultK
	}
	opts.DefaultK = min(opts.DefaultK, opts.MaxK)
	if opts.SharedTimeout <= 0 {
		opts.SharedTimeout = DefaultSharedTimeout
	}
	return &Service{embed: embed, opts: opts, logger: logger}
}

// Load builds an index over c and swaps it in. On error the previous snapshot stays active.
func (s *Service) Load(c *domcorpus.Corpus) error {
	idx, err := index.Build(c.Vectors())
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	s.snap.Store(&snapshot{gen: s.gen.Add(1), corpus: c, index: idx})
	metrics.IndexSize.Set(float64(idx.Len()))
	s.logger.Info("Search snapshot loaded",
		zap.Int("records", idx.Len()),
		zap.Int("dimensions", idx.Dim()),
	)
	return nil
}

// LoadArtifact reads the artifact at path and loads it.
func (s *Service) LoadArtifact(ctx context.Context, loader ArtifactLoader, path string) error {
	c, err := loader.LoadArtifact(ctx, path)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	return s.Load(c)
}

// Size returns the number of indexed records, 0 when nothing is loaded.
func (s *Service) Size() int {
	if snap := s.snap.Load(); snap != nil {
		return snap.index.Len()
	}
	return 0
}

// Ready reports whether a snapshot is loaded.
func (s *Service) Ready() bool { return s.snap.Load() != nil }

// FindBestMatch embeds query and returns up to k nearest records, closest first.
// k == 0 means the configured default; k above the configured maximum is clamped.
// Identical concurrent queries against the same snapshot share one embedding
// call and search. A caller that gives up does not cancel the shared call for the others.
func (s *Service) FindBestMatch(ctx context.Context, query string, k int) ([]result.Match, error) {
	start := time.Now()
	matches, err := s.findBestMatch(ctx, query, k)
	metrics.SearchDuration.WithLabelValues(statusLabel(err)).Observe(time.Since(start).Seconds())
	return matches, err
}

func (s *Service) findBestMatch(ctx context.Context, query string, k int) ([]result.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty: %w", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryBytes {
		return nil, fmt.Errorf("query exceeds %d bytes: %w", MaxQueryBytes, domain.ErrInvalidQuery)
	}
	switch {
	case k < 0:
		return nil, fmt.Errorf("k must not be negative, got %d: %w", k, domain.ErrInvalidQuery)
	case k == 0:
		k = s.opts.DefaultK
	case k > s.opts.MaxK:
		k = s.opts.MaxK
	}

	snap := s.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("no index loaded: %w", domain.ErrEmptyCorpus)
	}

	key := strconv.FormatUint(snap.gen, 10) + "\x00" + strconv.Itoa(k) + "\x00" + query
	ch := s.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SharedTimeout)
		defer cancel()
		return s.search(sharedCtx, snap, query, k)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("find best match: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // already wrapped in search
		}
		shared := res.Val.([]result.Match) //nolint:forcetypeassert // singleflight returns what search returns
		return append([]result.Match(nil), shared...), nil
	}
}

func (s *Service) search(ctx context.Context, snap *snapshot, query string, k int) ([]result.Match, error) {
	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	neighbors, err := snap.index.Search(emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	matches := make([]result.Match, len(neighbors))
	for i, n := range neighbors {
		matches[i] = result.New(snap.corpus.At(n.Position), n.Position, n.Distance)
	}
	return matches, nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidQuery):
		return "invalid"
	case errors.Is(err, domain.ErrEmptyCorpus):
		return "empty"
	default:
		return "error"
	}
}
