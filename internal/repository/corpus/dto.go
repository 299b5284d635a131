package corpus

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

// Reserved artifact keys written next to the original attributes.
const (
	keyID        = "id"
	keyText      = "text"
	keyEmbedding = "embedding"
)

// checkReserved rejects source attributes that the artifact would overwrite.
func checkReserved(attrs map[string]any, idField string) error {
	for _, k := range []string{keyID, keyText, keyEmbedding} {
		if _, ok := attrs[k]; ok && k != idField {
			return fmt.Errorf("source field %q is reserved in the artifact: %w", k, domain.ErrDataFormat)
		}
	}
	return nil
}

// toArtifact flattens a record into its persisted form: the original
// attributes plus id, text and embedding.
func toArtifact(r record.Record) map[string]any {
	m := make(map[string]any, len(r.Attributes())+3)
	maps.Copy(m, r.Attributes())
	m[keyID] = r.ID()
	m[keyText] = r.Text()
	if r.HasVector() {
		m[keyEmbedding] = r.Vector()
	}
	return m
}

// fromArtifact rebuilds a record from one artifact object.
func fromArtifact(position int, raw map[string]json.RawMessage) (record.Record, error) {
	var id, text string
	if err := decodeString(raw, keyID, &id); err != nil {
		return record.Record{}, fmt.Errorf("artifact record %d: %w", position, err)
	}
	if id == "" {
		return record.Record{}, fmt.Errorf("artifact record %d: missing %q: %w", position, keyID, domain.ErrDataFormat)
	}
	if err := decodeString(raw, keyText, &text); err != nil {
		return record.Record{}, fmt.Errorf("artifact record %q: %w", id, err)
	}

	var vec []float32
	if data, ok := raw[keyEmbedding]; ok {
		if err := json.Unmarshal(data, &vec); err != nil {
			return record.Record{}, fmt.Errorf("artifact record %q: embedding: %v: %w", id, err, domain.ErrDataFormat)
		}
	}

	attrs := make(map[string]any, len(raw))
	for k, data := range raw {
		if k == keyID || k == keyText || k == keyEmbedding {
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return record.Record{}, fmt.Errorf("artifact record %q: field %q: %v: %w", id, k, err, domain.ErrDataFormat)
		}
		attrs[k] = v
	}

	return record.Reconstruct(id, text, attrs, vec), nil
}

func decodeString(raw map[string]json.RawMessage, key string, dst *string) error {
	data, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("field %q is not a string: %w", key, domain.ErrDataFormat)
	}
	return nil
}
