package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"animeshelf/models"
	"animeshelf/services/profiles"
)

// ProfileService is the profile store surface used by the HTTP API.
type ProfileService interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
	Subscribe(ctx context.Context, userID string) (*profiles.Subscription, error)
	UpdateLists(ctx context.Context, userID string, patch models.ListPatch) (models.Profile, error)
	Add(ctx context.Context, userID string, list models.ListName, entry models.ListEntry) (models.Profile, error)
	Remove(ctx context.Context, userID string, list models.ListName, id int64) (models.Profile, error)
	Move(ctx context.Context, userID string, req models.MoveRequest) (models.Profile, error)
	SetEpisode(ctx context.Context, userID string, id int64, episode int) (models.Profile, error)
	IncrementEpisode(ctx context.Context, userID string, id int64) (models.Profile, error)
	Complete(ctx context.Context, userID string, id int64, idempotencyKey string) (models.Profile, error)
}

// Enricher attaches extended details to list entries.
type Enricher interface {
	EnrichAll(ctx context.Context, entries []models.ListEntry) []models.EnrichedEntry
}

const idempotencyHeader = "Idempotency-Key"

// ListsHandler serves the profile document and its list mutations.
type ListsHandler struct {
	profiles ProfileService
	details  Enricher
}

// NewListsHandler creates a new lists handler.
func NewListsHandler(profilesService ProfileService, details Enricher) *ListsHandler {
	return &ListsHandler{profiles: profilesService, details: details}
}

type episodeRequest struct {
	Episode *int `json:"episode"`
}

// GetProfile returns the caller's profile document.
// GET /api/profile
func (h *ListsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), uid)
	if err != nil {
		serviceError(w, r, "get_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateLists applies a union/remove patch.
// PATCH /api/profile/lists
func (h *ListsHandler) UpdateLists(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var patch models.ListPatch
	if err := decodeJSON(r, &patch); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, r, "update_lists")(h.profiles.UpdateLists(r.Context(), uid, patch))
}

// AddEntry adds an entry to a list.
// POST /api/lists/{list}/entries
func (h *ListsHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, ok := listParam(w, r)
	if !ok {
		return
	}
	var entry models.ListEntry
	if err := decodeJSON(r, &entry); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, r, "add")(h.profiles.Add(r.Context(), uid, list, entry))
}

// RemoveEntry removes an entry from a list.
// DELETE /api/lists/{list}/entries/{id}
func (h *ListsHandler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, ok := listParam(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "remove")(h.profiles.Remove(r.Context(), uid, list, id))
}

// Move transfers an entry between lists.
// POST /api/lists/move
func (h *ListsHandler) Move(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req models.MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if from, err := models.ParseListName(string(req.From)); err == nil {
		req.From = from
	}
	if to, err := models.ParseListName(string(req.To)); err == nil {
		req.To = to
	}
	req.IdempotencyKey = r.Header.Get(idempotencyHeader)
	h.respond(w, r, "move")(h.profiles.Move(r.Context(), uid, req))
}

// SetEpisode sets the tracked episode of a watching entry.
// PUT /api/lists/watching/entries/{id}/episode
func (h *ListsHandler) SetEpisode(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req episodeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Episode == nil {
		jsonError(w, "episode is required", http.StatusBadRequest)
		return
	}
	h.respond(w, r, "set_episode")(h.profiles.SetEpisode(r.Context(), uid, id, *req.Episode))
}

// IncrementEpisode advances the tracked episode by one.
// POST /api/lists/watching/entries/{id}/episode/increment
func (h *ListsHandler) IncrementEpisode(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "increment_episode")(h.profiles.IncrementEpisode(r.Context(), uid, id))
}

// Complete moves a watching entry to watched.
// POST /api/lists/watching/entries/{id}/complete
func (h *ListsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "complete")(h.profiles.Complete(r.Context(), uid, id, r.Header.Get(idempotencyHeader)))
}

// Details returns a list with every entry enriched.
// GET /api/lists/{list}/details
func (h *ListsHandler) Details(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, ok := listParam(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), uid)
	if err != nil {
		serviceError(w, r, "details", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"list":    list,
		"entries": h.details.EnrichAll(r.Context(), p.List(list)),
	})
}

func (h *ListsHandler) respond(w http.ResponseWriter, r *http.Request, op string) func(models.Profile, error) {
	return func(p models.Profile, err error) {
		if err != nil {
			serviceError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		jsonError(w, unauthenticatedMessage, http.StatusUnauthorized)
		return "", false
	}
	return sess.UserID, true
}

func listParam(w http.ResponseWriter, r *http.Request) (models.ListName, bool) {
	list, err := models.ParseListName(mux.Vars(r)["list"])
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return list, true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "Invalid entry id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
