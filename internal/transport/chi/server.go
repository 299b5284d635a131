package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/transport/wire"
	healthuc "github.com/kailas-cloud/propsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/propsearch/internal/usecase/search"
)

// maxBodyBytes caps request bodies; batch embed requests are the largest.
const maxBodyBytes = 4 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the embedding and search API.
type Server struct {
	embed         domain.Embedder
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	embed domain.Embedder,
	search *searchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		embed:  embed,
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, wire.CodeInvalidQuery, true),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, wire.CodeDimensionMismatch, false),
		sentinelHandler(domain.ErrEmptyCorpus, http.StatusServiceUnavailable, wire.CodeIndexNotLoaded, false),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, wire.CodeEmbeddingProvider, false),
	}
	return s
}

// Embed handles POST /embed.
func (s *Server) Embed(w http.ResponseWriter, r *http.Request) {
	var req wire.EmbedRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, wire.CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Text.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, wire.CodeBadRequest, err.Error())
		return
	}

	if !req.Text.Batch {
		res, err := s.embed.Embed(r.Context(), req.Text.Values[0])
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wire.EmbedResponse{Embedding: res.Embedding})
		return
	}

	res, err := domain.BatchEmbed(r.Context(), s.embed, req.Text.Values)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.EmbedResponse{Embeddings: res.Embeddings})
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req wire.SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, wire.CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	matches, err := s.search.FindBestMatch(r.Context(), req.Query, req.K)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]wire.SearchItem, len(matches))
	for i, m := range matches {
		items[i] = matchToWire(m)
	}
	writeJSON(w, http.StatusOK, wire.SearchResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, wire.HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func matchToWire(m result.Match) wire.SearchItem {
	return wire.SearchItem{
		ID:       m.ID(),
		Text:     m.Record().Text(),
		Distance: m.Distance(),
		Fields:   m.Record().Attributes(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v) //nolint:wrapcheck // message goes to the client as is
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, wire.ErrorResponse{Error: message, Code: code})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// With detailed set the full error text is returned, otherwise only the sentinel's.
func sentinelHandler(sentinel error, status int, code string, detailed bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if detailed {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := requestLogger(r, s.logger)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, wire.CodeInternal, "internal error")
}
