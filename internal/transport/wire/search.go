package wire

// SearchRequest is the body of POST /search. K == 0 means the server default.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchItem is one ranked match.
type SearchItem struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Distance float64        `json:"distance"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// SearchResponse lists matches closest first.
type SearchResponse struct {
	Items []SearchItem `json:"items"`
	Total int          `json:"total"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every non-2xx API answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeInvalidQuery      = "invalid_query"
	CodeDimensionMismatch = "dimension_mismatch"
	CodeIndexNotLoaded    = "index_not_loaded"
	CodeEmbeddingProvider = "embedding_provider_error"
	CodeInternal          = "internal_error"
)
