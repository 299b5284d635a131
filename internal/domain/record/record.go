package record

import (
	"fmt"
	"maps"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// Record is one unit of searchable content: a listing, an agency section or a property.
type Record struct {
	id     string
	text   string
	attrs  map[string]any
	vector []float32
}

// New validates and creates a Record without a vector.
// The text may be empty: ingestion reports such records instead of failing the load.
func New(id, text string, attrs map[string]any) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required: %w", domain.ErrDataFormat)
	}
	return Record{id: id, text: text, attrs: maps.Clone(attrs)}, nil
}

// Reconstruct creates a Record without validation (artifact hydration).
func Reconstruct(id, text string, attrs map[string]any, vector []float32) Record {
	return Record{id: id, text: text, attrs: attrs, vector: vector}
}

// ID returns the record identifier.
func (r Record) ID() string { return r.id }

// Text returns the text representation used for embedding.
func (r Record) Text() string { return r.text }

// Attributes returns the original source fields.
func (r Record) Attributes() map[string]any { return r.attrs }

// Vector returns the embedding vector (nil until embedded).
func (r Record) Vector() []float32 { return r.vector }

// HasVector reports whether an embedding is attached.
func (r Record) HasVector() bool { return len(r.vector) > 0 }

// WithVector returns a copy with the given vector set.
func (r Record) WithVector(v []float32) Record {
	return Record{id: r.id, text: r.text, attrs: r.attrs, vector: v}
}
