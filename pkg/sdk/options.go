package propsearch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	embedder Embedder

	documentInstruction string
	queryInstruction    string

	defaultK  int
	maxK      int
	workers   int
	batchSize int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithEmbedder sets the text embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithInstructions sets the prefixes prepended to record texts at ingestion
// and to queries at search time. Both default to empty.
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.documentInstruction = document
		c.queryInstruction = query
	})
}

// WithResultLimits sets the result count used when Search is called with k=0
// and the upper bound k is clamped to. Defaults: 1 and 100.
func WithResultLimits(defaultK, maxK int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultK = defaultK
		c.maxK = maxK
	})
}

// WithIngestConcurrency sets how many embedding batches run in parallel and
// how many records each batch carries. Defaults: 4 workers, 32 records.
func WithIngestConcurrency(workers, batchSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = workers
		c.batchSize = batchSize
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts, durations and
// index size) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
