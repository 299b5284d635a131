package domain

import "errors"

var (
	// ErrDataFormat signals a malformed or missing input file, record or field mapping.
	ErrDataFormat = errors.New("data format error")
	// ErrEmbedding signals an embedding provider failure, timeout or invalid input.
	ErrEmbedding = errors.New("embedding error")
	// ErrDimensionMismatch signals vectors of inconsistent length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyCorpus signals an index build (or search) over zero vectors.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrInvalidQuery signals empty or malformed query input.
	ErrInvalidQuery = errors.New("invalid query")
)
