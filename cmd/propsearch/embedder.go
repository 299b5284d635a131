package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/config"
	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	"github.com/kailas-cloud/propsearch/internal/repository/embcache"
	"github.com/kailas-cloud/propsearch/internal/transport/embedsvc"
	openaiEmb "github.com/kailas-cloud/propsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/propsearch/internal/usecase/embedding"
)

// embedders holds the provider chain built once per process. Document and
// query embedders share the provider, cache and rate limiter and differ only
// in their instruction prefix.
type embedders struct {
	raw      domain.Embedder
	document domain.Embedder
	query    domain.Embedder
}

// buildEmbedders assembles the decorator chain:
// Provider -> RateLimit -> Cache -> Instrumented -> Instruction.
func (a *app) buildEmbedders(ctx context.Context) (embedders, error) {
	cfg := a.cfg.Embedding
	base, err := newProvider(cfg, a.logger)
	if err != nil {
		return embedders{}, err
	}

	// Rate limit sits under the cache so hits never wait for a token.
	var embedder domain.Embedder = embeddinguc.NewRateLimitedEmbedder(
		base, cfg.Provider, cfg.RateLimitRPS, cfg.RateLimitBurst,
	)

	store, err := a.openCache(ctx)
	if err != nil {
		return embedders{}, err
	}
	if store != nil {
		embedder = embcache.New(embedder, store, embcache.Options{
			KeyPrefix: cacheKeyPrefix(a.cfg.Cache.KeyPrefix, cfg),
			TTL:       time.Duration(a.cfg.Cache.TTLHours) * time.Hour,
		}, metrics.EmbeddingCacheTotal, a.logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Provider, cfg.Model, cfg.MaxAPIBatchSize, a.logger,
	)

	a.logger.Info("Embedders created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("cache", store != nil),
	)

	// Instruction prefix (outermost: cache key includes instruction)
	return embedders{
		raw:      embedder,
		document: withInstruction(embedder, cfg.DocumentInstruction),
		query:    withInstruction(embedder, cfg.QueryInstruction),
	}, nil
}

func newProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Timeout:    timeout,
			Logger:     logger,
		}), nil
	case config.ProviderEmbedSvc:
		return embedsvc.NewEmbedder(&embedsvc.Config{
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Timeout:  timeout,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// cacheKeyPrefix scopes cached vectors to one provider, model and dimension setting.
func cacheKeyPrefix(prefix string, cfg config.EmbeddingConfig) string {
	return fmt.Sprintf("%s%s:%s:%d:", prefix, cfg.Provider, cfg.Model, cfg.Dimensions)
}
