package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/citation-network-service/internal/cache"
	"github.com/helixir/citation-network-service/internal/domain"
	"github.com/helixir/citation-network-service/internal/network"
	"github.com/helixir/citation-network-service/internal/observability"
	"github.com/helixir/citation-network-service/internal/ranking"
)

// Request limits.
const (
	maxArticleIDs      = 200
	maxCandidates      = 1000
	maxPatternLength   = 512
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

type articlesResponse struct {
	Articles   []domain.ArticleRecord `json:"articles"`
	Unresolved []string               `json:"unresolved"`
}

// getArticles handles GET /articles?ids=1,2,3.
func (s *Server) getArticles(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query()["ids"])
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if len(ids) > maxArticleIDs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d ids per request", maxArticleIDs))
		return
	}

	records := s.deps.Resolver.Resolve(r.Context(), ids)

	found := make(map[string]bool, len(records))
	for _, rec := range records {
		found[rec.ID] = true
	}
	unresolved := make([]string, 0)
	for _, id := range ids {
		if !found[id] {
			unresolved = append(unresolved, id)
		}
	}
	if records == nil {
		records = []domain.ArticleRecord{}
	}

	writeJSON(w, http.StatusOK, articlesResponse{Articles: records, Unresolved: unresolved})
}

// getRelated handles GET /articles/{articleID}/related.
func (s *Server) getRelated(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "articleID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "article id is required")
		return
	}

	relation := domain.RelationCitations
	if v := r.URL.Query().Get("relation"); v != "" {
		parsed, err := domain.ParseRelationType(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		relation = parsed
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	result := s.deps.Finder.FindRelated(r.Context(), id, relation, limit)
	writeJSON(w, http.StatusOK, result)
}

type buildNetworkRequest struct {
	network.BuildRequest
	// ValidateOnly omits the graph from the response.
	ValidateOnly bool `json:"validate_only,omitempty"`
}

type networkResponse struct {
	Network    *domain.NetworkGraph     `json:"network,omitempty"`
	Validation network.ValidationResult `json:"validation"`
}

// buildNetwork handles POST /networks.
func (s *Server) buildNetwork(w http.ResponseWriter, r *http.Request) {
	var req buildNetworkRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Filter != nil {
		if err := network.ValidateFilter(s.validate, *req.Filter); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	graph, validation, err := s.deps.Builder.Build(r.Context(), req.BuildRequest)
	if err != nil {
		s.logError(r.Context(), err, "network build failed")
		writeDomainError(w, err)
		return
	}

	resp := networkResponse{Validation: validation}
	if !req.ValidateOnly {
		resp.Network = &graph
	}
	writeJSON(w, http.StatusOK, resp)
}

type rankRequest struct {
	Candidates []ranking.Candidate    `json:"candidates"`
	Reference  *ranking.Candidate     `json:"reference,omitempty"`
	Profile    *ranking.Profile       `json:"profile,omitempty"`
	Criteria   domain.RankingCriteria `json:"criteria"`
}

type rankResponse struct {
	Results  []ranking.Scored `json:"results"`
	Filtered int              `json:"filtered"`
}

// rankCandidates handles POST /rankings.
func (s *Server) rankCandidates(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ranker == nil {
		writeError(w, http.StatusServiceUnavailable, "ranking is disabled")
		return
	}

	var req rankRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.Candidates) > maxCandidates {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d candidates per request", maxCandidates))
		return
	}

	results, err := s.deps.Ranker.Rank(r.Context(), req.Candidates, req.Criteria, req.Reference, req.Profile)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []ranking.Scored{}
	}

	writeJSON(w, http.StatusOK, rankResponse{
		Results:  results,
		Filtered: len(req.Candidates) - len(results),
	})
}

type cacheStatsResponse struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
}

// getCacheStats handles GET /cache/stats.
func (s *Server) getCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := make([]cacheStatsResponse, 0, len(s.deps.Caches))
	for _, c := range s.deps.Caches {
		st := c.Stats()
		stats = append(stats, cacheStatsResponse{Stats: st, HitRate: st.HitRate()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": stats})
}

type invalidateResponse struct {
	Pattern string         `json:"pattern"`
	Removed int            `json:"removed"`
	ByCache map[string]int `json:"by_cache"`
}

// invalidateCache handles DELETE /cache?pattern=regex[&cache=name].
func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	if len(pattern) > maxPatternLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("pattern must be at most %d characters", maxPatternLength))
		return
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		writeError(w, http.StatusBadRequest, "pattern is not a valid regular expression")
		return
	}
	only := r.URL.Query().Get("cache")

	resp := invalidateResponse{Pattern: pattern, ByCache: make(map[string]int)}
	for _, c := range s.deps.Caches {
		if only != "" && c.Name() != only {
			continue
		}
		n := c.InvalidateByPattern(re)
		resp.ByCache[c.Name()] = n
		resp.Removed += n
	}
	if only != "" && len(resp.ByCache) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown cache: %s", only))
		return
	}

	s.logger.Info().Str("pattern", pattern).Int("removed", resp.Removed).Msg("cache entries invalidated")
	writeJSON(w, http.StatusOK, resp)
}

// writeDomainError maps domain errors to appropriate HTTP status codes
// and writes a JSON error response.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) logError(ctx context.Context, err error, msg string) {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrConfiguration) || errors.Is(err, domain.ErrNotFound) {
		return
	}
	logger := observability.WithRequestContext(ctx, s.logger)
	logger.Error().Err(err).Msg(msg)
}

// decodeJSONBody reads a size-limited JSON body into v, writing a 400
// response and returning false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// splitIDs flattens repeated and comma-separated id parameters, dropping
// blanks and duplicates while keeping first-seen order.
func splitIDs(values []string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			id := strings.TrimSpace(part)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// parseLimit reads the optional limit parameter. 0 means the default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
