package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"animeshelf/config"
	"animeshelf/internal/upstream"
	"animeshelf/models"
	"animeshelf/utils/filter"
)

//go:generate mockgen -source=service.go -destination=mocks_test.go -package=recommend_test

// ProfileReader loads the profile the recommendations are based on.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
}

// TitleFinder resolves a suggested title against the catalog.
type TitleFinder interface {
	FindByTitle(ctx context.Context, title string) (models.SearchResult, error)
}

// Service asks an OpenAI-compatible chat-completion API for recommendations.
type Service struct {
	profiles    ProfileReader
	finder      TitleFinder
	http        *upstream.Client
	baseURL     string
	apiKey      string
	model       string
	count       int
	topGenres   int
	temperature float64
	workers     int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewService creates the recommendation service.
func NewService(profiles ProfileReader, finder TitleFinder, cfg config.RecommendConfig, breaker config.BreakerConfig) *Service {
	s := &Service{
		profiles:    profiles,
		finder:      finder,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		count:       cfg.Count,
		topGenres:   cfg.TopGenres,
		temperature: cfg.Temperature,
		workers:     cfg.LookupWorkers,
	}
	if s.count <= 0 {
		s.count = 10
	}
	if s.topGenres <= 0 {
		s.topGenres = 5
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	s.http = upstream.New("llm", upstream.Options{
		Timeout:             cfg.Timeout,
		ConsecutiveFailures: breaker.ConsecutiveFailures,
		OpenTimeout:         breaker.OpenTimeout,
		RequestsPerSecond:   cfg.RequestsPerSecond,
	})
	return s
}

// Recommend returns suggestions for userID that are not already in any of
// their lists. Suggestions that resolve against the catalog carry its id and
// image.
func (s *Service) Recommend(ctx context.Context, userID string) ([]models.Recommendation, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	top := TopGenres(profile.Watched, s.topGenres)
	prompt := BuildPrompt(profile.Watched, profile.Planned, top, s.count)

	content, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	suggestions, err := ParseRecommendations(content)
	if err != nil {
		log.Printf("[recommend] unusable model output for %s: %v", userID, err)
		return nil, err
	}

	known, knownIDs := listedTitles(profile)
	fresh := make([]models.Recommendation, 0, len(suggestions))
	for _, rec := range suggestions {
		if filter.ContainsTitle(known, rec.Title) || filter.ContainsTitle(titlesOf(fresh), rec.Title) {
			continue
		}
		fresh = append(fresh, rec)
		if len(fresh) == s.count {
			break
		}
	}

	s.resolve(ctx, fresh)

	out := make([]models.Recommendation, 0, len(fresh))
	for _, rec := range fresh {
		if _, listed := knownIDs[rec.ID]; rec.ID != 0 && listed {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// resolve looks every suggestion up in the catalog. A failed lookup leaves
// the suggestion unresolved.
func (s *Service) resolve(ctx context.Context, recs []models.Recommendation) {
	if s.finder == nil {
		return
	}
	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range recs {
		p.Go(func() {
			match, err := s.finder.FindByTitle(ctx, recs[i].Title)
			if err != nil {
				log.Printf("[recommend] catalog lookup for %q failed: %v", recs[i].Title, err)
				return
			}
			recs[i].ID = match.ID
			recs[i].Image = match.MainPicture.Medium
		})
	}
	p.Wait()
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    s.temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", &ParseError{Reason: "invalid completion envelope", Err: err}
	}
	if len(decoded.Choices) == 0 {
		return "", &ParseError{Reason: "no choices in completion"}
	}
	return decoded.Choices[0].Message.Content, nil
}

func listedTitles(p models.Profile) ([]string, map[int64]struct{}) {
	var titles []string
	ids := make(map[int64]struct{})
	for _, name := range models.AllLists {
		for _, e := range p.List(name) {
			titles = append(titles, e.Title)
			ids[e.ID] = struct{}{}
		}
	}
	return titles, ids
}

func titlesOf(recs []models.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

