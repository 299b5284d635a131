package result

import "github.com/kailas-cloud/propsearch/internal/domain/record"

// Match is a single nearest-neighbor hit.
type Match struct {
	record   record.Record
	position int
	distance float64
}

// New creates a match for the record at position with its squared L2 distance.
func New(r record.Record, position int, distance float64) Match {
	return Match{record: r, position: position, distance: distance}
}

// Record returns the matched record.
func (m Match) Record() record.Record { return m.record }

// ID returns the matched record identifier.
func (m Match) ID() string { return m.record.ID() }

// Position returns the record's position in the corpus.
func (m Match) Position() int { return m.position }

// Distance returns the squared Euclidean distance to the query (lower is closer).
func (m Match) Distance() float64 { return m.distance }
