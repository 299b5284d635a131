package propsearch

import "github.com/kailas-cloud/propsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrDataFormat        = domain.ErrDataFormat
	ErrEmbedding         = domain.ErrEmbedding
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrEmptyCorpus       = domain.ErrEmptyCorpus
	ErrInvalidQuery      = domain.ErrInvalidQuery
)
