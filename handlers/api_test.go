package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"animeshelf/handlers"
	"animeshelf/internal/database"
	"animeshelf/internal/upstream"
	"animeshelf/models"
	"animeshelf/services/catalog"
	"animeshelf/services/profiles"
	"animeshelf/services/recommend"
	"animeshelf/services/users"
	"animeshelf/utils"
)

type stubSearcher struct {
	results []models.SearchResult
	err     error
}

func (s stubSearcher) Search(_ context.Context, query string) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, catalog.ErrEmptyQuery
	}
	return s.results, s.err
}

type stubEnricher struct{}

func (stubEnricher) EnrichAll(_ context.Context, entries []models.ListEntry) []models.EnrichedEntry {
	out := make([]models.EnrichedEntry, len(entries))
	for i, e := range entries {
		out[i] = models.EnrichedEntry{ListEntry: e, Details: models.Enrichment{Synopsis: "about " + e.Title}}
	}
	return out
}

type stubRecommender struct {
	recs []models.Recommendation
	err  error
}

func (s stubRecommender) Recommend(context.Context, string) ([]models.Recommendation, error) {
	return s.recs, s.err
}

type testAPI struct {
	server *httptest.Server
	users  *users.Service
	store  *profiles.Store
}

func newTestAPI(t *testing.T, deps handlers.Dependencies) *testAPI {
	t.Helper()
	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	usersService, err := users.NewService(db, users.Options{
		Secret:     []byte("handler-secret"),
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
		Mailer:     users.LogMailer{},
	})
	require.NoError(t, err)
	store := profiles.NewStore(db, profiles.Options{})

	deps.Users = usersService
	deps.Profiles = store
	if deps.Catalog == nil {
		deps.Catalog = stubSearcher{}
	}
	if deps.Details == nil {
		deps.Details = stubEnricher{}
	}
	if deps.Recommender == nil {
		deps.Recommender = stubRecommender{}
	}

	router := utils.NewRouter()
	router.Use(handlers.RequestLogger)
	handlers.RegisterRoutes(router, deps)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, users: usersService, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (a *testAPI) signUp(t *testing.T, email string) string {
	t.Helper()
	resp, _ := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "secret1", "username": "fan",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

func decodeProfile(t *testing.T, body []byte) models.Profile {
	t.Helper()
	var p models.Profile
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})

	for _, path := range []string{"/api/profile", "/api/me", "/api/search?q=x", "/api/recommendations"} {
		resp, body := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.JSONEq(t, `{"error":"You must be logged in."}`, string(body), path)
	}

	resp, _ := api.do(t, http.MethodGet, "/api/profile", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginAndLogout(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	token := api.signUp(t, "flow@example.com")

	resp, body := api.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var acct models.Account
	require.NoError(t, json.Unmarshal(body, &acct))
	assert.Equal(t, "flow@example.com", acct.Email)

	resp, _ = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "flow@example.com", "password": "secret1", "username": "dup",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "flow@example.com", "password": "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	resp, body := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bad", "password": "1", "username": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "email")
}

func TestListLifecycle(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	token := api.signUp(t, "lists@example.com")

	resp, body := api.do(t, http.MethodPost, "/api/lists/planned/entries", token,
		models.ListEntry{ID: 20, Title: "Naruto", Image: "https://img/20.jpg", Genres: []string{"Action"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Len(t, decodeProfile(t, body).Planned, 1)

	resp, _ = api.do(t, http.MethodPost, "/api/lists/unknown/entries", token, models.ListEntry{ID: 1, Title: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	move := map[string]any{"id": 20, "from": "planned", "to": "watching"}
	resp, body = api.do(t, http.MethodPost, "/api/lists/move", token, move, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	moved := decodeProfile(t, body)
	assert.Empty(t, moved.Planned)
	require.Len(t, moved.Watching, 1)
	assert.Equal(t, 0, moved.Watching[0].EpisodeOrZero())

	resp, body = api.do(t, http.MethodPost, "/api/lists/move", token, move, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, moved.Version, decodeProfile(t, body).Version)

	resp, body = api.do(t, http.MethodPut, "/api/lists/watching/entries/20/episode", token, map[string]int{"episode": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = api.do(t, http.MethodPost, "/api/lists/watching/entries/20/episode/increment", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 6, decodeProfile(t, body).Watching[0].EpisodeOrZero())

	resp, _ = api.do(t, http.MethodPut, "/api/lists/watching/entries/20/episode", token, map[string]int{"episode": -2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/lists/watching/details", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var details struct {
		List    string                 `json:"list"`
		Entries []models.EnrichedEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &details))
	require.Len(t, details.Entries, 1)
	assert.Equal(t, "about Naruto", details.Entries[0].Details.Synopsis)

	resp, body = api.do(t, http.MethodPost, "/api/lists/watching/entries/20/complete", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decodeProfile(t, body)
	assert.Empty(t, done.Watching)
	require.Len(t, done.Watched, 1)
	assert.Nil(t, done.Watched[0].Episode)

	resp, _ = api.do(t, http.MethodPost, "/api/lists/move", token,
		map[string]any{"id": 999, "from": "planned", "to": "watched"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(t, http.MethodDelete, "/api/lists/watched/entries/20", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeProfile(t, body).Watched)

	resp, body = api.do(t, http.MethodPatch, "/api/profile/lists", token, models.ListPatch{Ops: []models.ListOp{
		{Op: models.OpUnion, List: models.ListPlanned, Entries: []models.ListEntry{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Len(t, decodeProfile(t, body).Planned, 2)
}

func TestSearchErrors(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{
		Catalog: stubSearcher{err: fmt.Errorf("catalog: %w", upstream.ErrUnavailable)},
	})
	token := api.signUp(t, "search@example.com")

	resp, _ := api.do(t, http.MethodGet, "/api/search?q=", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/search?q=naruto", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClientDisconnectIsNotAServerError(t *testing.T) {
	var logs bytes.Buffer
	prev, prevOut, prevFlags := slog.Default(), log.Writer(), log.Flags()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	api := newTestAPI(t, handlers.Dependencies{
		Catalog: stubSearcher{err: fmt.Errorf("catalog request: %w", context.Canceled)},
	})
	token := api.signUp(t, "gone@example.com")

	resp, _ := api.do(t, http.MethodGet, "/api/search?q=naruto", token, nil)
	assert.Equal(t, 499, resp.StatusCode)
	assert.Contains(t, logs.String(), `"status":499`)
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
}

func TestSearchReturnsEmptyArray(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	token := api.signUp(t, "empty@example.com")

	resp, body := api.do(t, http.MethodGet, "/api/search?q=zzz", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"results":[]}`, string(body))
}

func TestRecommendationsMalformedIsBadGateway(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{
		Recommender: stubRecommender{err: &recommend.ParseError{Reason: "invalid JSON"}},
	})
	token := api.signUp(t, "rec@example.com")

	resp, _ := api.do(t, http.MethodGet, "/api/recommendations", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProfileStreamPushesCommits(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	token := api.signUp(t, "stream@example.com")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/profile/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	type message struct {
		Type    string         `json:"type"`
		Profile models.Profile `json:"profile"`
	}
	read := func() message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var m message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	first := read()
	assert.Equal(t, "profile", first.Type)
	assert.Empty(t, first.Profile.Planned)

	resp, _ := api.do(t, http.MethodPost, "/api/lists/planned/entries", token, models.ListEntry{ID: 5, Title: "Bleach"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	second := read()
	require.Len(t, second.Profile.Planned, 1)
	assert.Equal(t, int64(5), second.Profile.Planned[0].ID)
	assert.Greater(t, second.Profile.Version, first.Profile.Version)
}

func TestProfileStreamRejectsMissingToken(t *testing.T) {
	api := newTestAPI(t, handlers.Dependencies{})
	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/profile/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
