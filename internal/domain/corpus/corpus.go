package corpus

import (
	"fmt"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

// Corpus is an ordered collection of records. Positions are stable for the
// lifetime of the value and are what the index refers to.
type Corpus struct {
	records []record.Record
	byID    map[string]int
}

// New creates a Corpus, rejecting duplicate identifiers.
func New(records []record.Record) (*Corpus, error) {
	byID := make(map[string]int, len(records))
	for i, r := range records {
		if prev, ok := byID[r.ID()]; ok {
			return nil, fmt.Errorf("duplicate record ID %q at positions %d and %d: %w",
				r.ID(), prev, i, domain.ErrDataFormat)
		}
		byID[r.ID()] = i
	}
	return &Corpus{records: append([]record.Record(nil), records...), byID: byID}, nil
}

// Len returns the number of records.
func (c *Corpus) Len() int { return len(c.records) }

// At returns the record at position i.
func (c *Corpus) At(i int) record.Record { return c.records[i] }

// Records returns a copy of the records in corpus order.
func (c *Corpus) Records() []record.Record {
	return append([]record.Record(nil), c.records...)
}

// Lookup returns the record with the given ID.
func (c *Corpus) Lookup(id string) (record.Record, bool) {
	i, ok := c.byID[id]
	if !ok {
		return record.Record{}, false
	}
	return c.records[i], true
}

// Vectors returns the record vectors in corpus order. Records without a
// vector contribute nil, which the index builder rejects.
func (c *Corpus) Vectors() [][]float32 {
	out := make([][]float32, len(c.records))
	for i, r := range c.records {
		out[i] = r.Vector()
	}
	return out
}

// Dimension returns the vector length of the first embedded record, or 0.
func (c *Corpus) Dimension() int {
	for _, r := range c.records {
		if r.HasVector() {
			return len(r.Vector())
		}
	}
	return 0
}
