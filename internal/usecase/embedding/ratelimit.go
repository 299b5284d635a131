package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// RateLimitedEmbedder throttles provider calls. One batch call costs one token,
// so the limiter caps request rate, not text count.
type RateLimitedEmbedder struct {
	inner    domain.Embedder
	limiter  *rate.Limiter
	provider string
}

// NewRateLimitedEmbedder allows rps calls per second with the given burst.
// rps <= 0 disables limiting.
func NewRateLimitedEmbedder(inner domain.Embedder, provider string, rps float64, burst int) *RateLimitedEmbedder {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:    inner,
		limiter:  rate.NewLimiter(limit, burst),
		provider: provider,
	}
}

// Embed waits for the limiter, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return r.inner.Embed(ctx, text) //nolint:wrapcheck // transparent decorator
}

// BatchEmbed waits for the limiter once per batch, then delegates.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := r.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbed(ctx, r.inner, texts)
}

// HealthCheck forwards without consuming rate budget.
func (r *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	metrics.EmbeddingRateLimitWait.WithLabelValues(r.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("rate limit wait: %v: %w", err, domain.ErrEmbedding)
	}
	return nil
}
