package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/citation-network-service/internal/domain"
)

const (
	maxCollectionNameLength = 200
	maxArticlesPerAdd       = 100
)

type createCollectionRequest struct {
	Name string `json:"name"`
}

type addArticlesRequest struct {
	IDs []string `json:"ids"`
}

type addArticlesResponse struct {
	Added      []string `json:"added"`
	Unresolved []string `json:"unresolved"`
}

type collectionArticlesResponse struct {
	CollectionID string                 `json:"collection_id"`
	Articles     []domain.ArticleRecord `json:"articles"`
}

// requireCollections answers 503 when no collection store is configured.
func (s *Server) requireCollections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Collections == nil {
			writeError(w, http.StatusServiceUnavailable, "collection store is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// createCollection handles POST /collections.
func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Name) > maxCollectionNameLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("name must be at most %d characters", maxCollectionNameLength))
		return
	}

	c, err := s.deps.Collections.CreateCollection(r.Context(), req.Name)
	if err != nil {
		s.logError(r.Context(), err, "create collection failed")
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("collection_id", c.ID.String()).Str("name", c.Name).Msg("collection created")
	writeJSON(w, http.StatusCreated, c)
}

// listCollections handles GET /collections.
func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cs, err := s.deps.Collections.ListCollections(r.Context())
	if err != nil {
		s.logError(r.Context(), err, "list collections failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cs})
}

// getCollection handles GET /collections/{collectionID}.
func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "collectionID"), "collection_id")
	if !ok {
		return
	}

	c, err := s.deps.Collections.GetCollection(r.Context(), id)
	if err != nil {
		s.logError(r.Context(), err, "get collection failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteCollection handles DELETE /collections/{collectionID}.
func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "collectionID"), "collection_id")
	if !ok {
		return
	}

	if err := s.deps.Collections.DeleteCollection(r.Context(), id); err != nil {
		s.logError(r.Context(), err, "delete collection failed")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCollectionArticles handles GET /collections/{collectionID}/articles.
func (s *Server) listCollectionArticles(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "collectionID"), "collection_id")
	if !ok {
		return
	}

	articles, err := s.deps.Collections.ListArticles(r.Context(), id)
	if err != nil {
		s.logError(r.Context(), err, "list collection articles failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionArticlesResponse{CollectionID: id.String(), Articles: articles})
}

// addCollectionArticles handles POST /collections/{collectionID}/articles.
// Identifiers are resolved upstream and the hydrated records stored;
// identifiers that do not resolve are reported back, not stored.
func (s *Server) addCollectionArticles(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "collectionID"), "collection_id")
	if !ok {
		return
	}

	var req addArticlesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	ids := splitIDs(req.IDs)
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if len(ids) > maxArticlesPerAdd {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d ids per request", maxArticlesPerAdd))
		return
	}

	// Fail fast on an unknown collection before calling upstream.
	if _, err := s.deps.Collections.GetCollection(r.Context(), id); err != nil {
		s.logError(r.Context(), err, "get collection failed")
		writeDomainError(w, err)
		return
	}

	records := s.deps.Resolver.Resolve(r.Context(), ids)
	resp := addArticlesResponse{Added: make([]string, 0, len(records)), Unresolved: make([]string, 0)}
	found := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := s.deps.Collections.AddArticle(r.Context(), id, rec); err != nil {
			s.logError(r.Context(), err, "add article failed")
			writeDomainError(w, err)
			return
		}
		found[rec.ID] = true
		resp.Added = append(resp.Added, rec.ID)
	}
	for _, articleID := range ids {
		if !found[articleID] {
			resp.Unresolved = append(resp.Unresolved, articleID)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// removeCollectionArticle handles DELETE /collections/{collectionID}/articles/{articleID}.
func (s *Server) removeCollectionArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "collectionID"), "collection_id")
	if !ok {
		return
	}

	if err := s.deps.Collections.RemoveArticle(r.Context(), id, chi.URLParam(r, "articleID")); err != nil {
		s.logError(r.Context(), err, "remove article failed")
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
