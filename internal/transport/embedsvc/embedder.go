// Package embedsvc is a client for a sentence-transformers embedding service
// speaking the {"text"} -> {"embedding"} protocol over HTTP.
package embedsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	"github.com/kailas-cloud/propsearch/internal/transport/wire"
)

// DefaultTimeout bounds a single service call when none is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is echoed into errors.
const maxErrorBody = 512

// Config holds the embedding service settings.
type Config struct {
	BaseURL  string
	Model    string
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Embedder calls a remote embedding service.
type Embedder struct {
	baseURL  string
	model    string
	provider string
	client   *http.Client
	timeout  time.Duration
	logger   *zap.Logger
}

// NewEmbedder creates an embedding service client.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "embedsvc"
	}
	return &Embedder{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		provider: provider,
		client:   &http.Client{},
		timeout:  timeout,
		logger:   cfg.Logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := domain.ValidateInput(text); err != nil {
		return domain.EmbeddingResult{}, err
	}
	resp, err := e.call(ctx, wire.EmbedRequest{Text: wire.Single(text)})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	if len(resp.Embedding) == 0 {
		e.recordError("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbedding)
	}
	return domain.EmbeddingResult{Embedding: resp.Embedding}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := domain.ValidateInput(texts...); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	resp, err := e.call(ctx, wire.EmbedRequest{Text: wire.Many(texts)})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if len(resp.Embeddings) != len(texts) {
		e.recordError("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("service returned %d embeddings for %d texts: %w",
			len(resp.Embeddings), len(texts), domain.ErrEmbedding)
	}
	return domain.BatchEmbeddingResult{Embeddings: resp.Embeddings}, nil
}

// HealthCheck probes GET /health, falling back to GET / for services without one.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	status, err := e.get(ctx, "/health")
	if err == nil && status == http.StatusNotFound {
		status, err = e.get(ctx, "/")
	}
	if err != nil {
		return fmt.Errorf("embedding service health: %w", err)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("embedding service health: status %d", status)
	}
	return nil
}

func (e *Embedder) get(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (e *Embedder) call(ctx context.Context, in wire.EmbedRequest) (wire.EmbedResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return wire.EmbedResponse{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return wire.EmbedResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		errType := "transport_error"
		if errors.Is(err, context.DeadlineExceeded) {
			errType = "timeout"
		}
		e.recordError(errType)
		return wire.EmbedResponse{}, fmt.Errorf("embedding service request: %v: %w", err, domain.ErrEmbedding)
	}
	defer resp.Body.Close()

	var out wire.EmbedResponse
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e.recordError("api_error")
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &out) == nil && out.Error != "" {
			msg = out.Error
		}
		return wire.EmbedResponse{}, fmt.Errorf("embedding service error %d: %s: %w",
			resp.StatusCode, msg, domain.ErrEmbedding)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		e.recordError("decode_error")
		return wire.EmbedResponse{}, fmt.Errorf("decode embedding response: %v: %w", err, domain.ErrEmbedding)
	}
	if out.Error != "" {
		e.recordError("api_error")
		return wire.EmbedResponse{}, fmt.Errorf("embedding service: %s: %w", out.Error, domain.ErrEmbedding)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(time.Since(start).Seconds())
	return out, nil
}

func (e *Embedder) recordError(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, errType).Inc()
}
