package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Dependencies are the services behind the HTTP API.
type Dependencies struct {
	Users       AccountService
	Profiles    ProfileService
	Catalog     Searcher
	Details     Enricher
	Recommender Recommender
}

// RegisterRoutes mounts the /api routes on r.
func RegisterRoutes(r *mux.Router, deps Dependencies) {
	auth := NewAuthHandler(deps.Users)
	lists := NewListsHandler(deps.Profiles, deps.Details)
	discover := NewDiscoverHandler(deps.Catalog, deps.Recommender)
	stream := NewStreamHandler(deps.Profiles)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", auth.Verify).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", auth.Login).Methods(http.MethodPost)

	api.Handle("/profile/stream", RequireSession(deps.Users, true)(http.HandlerFunc(stream.Stream))).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(RequireSession(deps.Users, false))
	protected.HandleFunc("/auth/logout", auth.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/me", auth.Me).Methods(http.MethodGet)
	protected.HandleFunc("/profile", lists.GetProfile).Methods(http.MethodGet)
	protected.HandleFunc("/profile/lists", lists.UpdateLists).Methods(http.MethodPatch)
	protected.HandleFunc("/lists/move", lists.Move).Methods(http.MethodPost)
	protected.HandleFunc("/lists/watching/entries/{id}/episode", lists.SetEpisode).Methods(http.MethodPut)
	protected.HandleFunc("/lists/watching/entries/{id}/episode/increment", lists.IncrementEpisode).Methods(http.MethodPost)
	protected.HandleFunc("/lists/watching/entries/{id}/complete", lists.Complete).Methods(http.MethodPost)
	protected.HandleFunc("/lists/{list}/entries", lists.AddEntry).Methods(http.MethodPost)
	protected.HandleFunc("/lists/{list}/entries/{id}", lists.RemoveEntry).Methods(http.MethodDelete)
	protected.HandleFunc("/lists/{list}/details", lists.Details).Methods(http.MethodGet)
	protected.HandleFunc("/search", discover.Search).Methods(http.MethodGet)
	protected.HandleFunc("/recommendations", discover.Recommendations).Methods(http.MethodGet)
}
