package handlers

import (
	"context"
	"net/http"

	"animeshelf/models"
)

// Searcher queries the external catalog.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Recommender produces AI recommendations for a user.
type Recommender interface {
	Recommend(ctx context.Context, userID string) ([]models.Recommendation, error)
}

// DiscoverHandler serves catalog search and recommendations.
type DiscoverHandler struct {
	catalog     Searcher
	recommender Recommender
}

// NewDiscoverHandler creates a new discover handler.
func NewDiscoverHandler(catalog Searcher, recommender Recommender) *DiscoverHandler {
	return &DiscoverHandler{catalog: catalog, recommender: recommender}
}

// Search runs a catalog search.
// GET /api/search?q=
func (h *DiscoverHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		serviceError(w, r, "search", err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Recommendations asks the model for titles the caller has not listed yet.
// GET /api/recommendations
func (h *DiscoverHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	recs, err := h.recommender.Recommend(r.Context(), uid)
	if err != nil {
		serviceError(w, r, "recommendations", err)
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}
