package propsearch

// Shape is the top-level layout of an ingestion source.
type Shape string

// Source shapes.
const (
	ShapeRecords  Shape = "records"  // JSON array of record objects
	ShapeSections Shape = "sections" // JSON object of section name → text or list
)

// IngestRequest describes one ingestion run.
// Fields are joined in order with Separator to form each record's text.
// For ShapeSections, Fields and Separator may be left empty.
type IngestRequest struct {
	Source    string
	Output    string
	Shape     Shape
	IDField   string
	Fields    []string
	Separator string
}

// Skip reports a record that was left out of the artifact.
type Skip struct {
	ID     string
	Reason string // "empty_text", "embedding_error" or "dimension_mismatch"
	Err    error
}

// IngestSummary describes the outcome of an ingestion run.
type IngestSummary struct {
	Total     int
	Embedded  int
	Dimension int
	Skipped   []Skip
}

// Hit is one search result. Distance is the squared Euclidean distance
// between the query and record embeddings.
type Hit struct {
	ID       string
	Text     string
	Distance float64
	Fields   map[string]any
}
