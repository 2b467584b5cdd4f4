package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"animeshelf/config"
	"animeshelf/internal/upstream"
	"animeshelf/models"
	"animeshelf/utils/filter"
)

const (
	defaultLimit     = 50
	findByTitleLimit = 10
	searchFields     = "title,main_picture,popularity"
)

var (
	ErrEmptyQuery = errors.New("search query is empty")
	ErrNotFound   = errors.New("no catalog match")
)

// Client searches the MyAnimeList v2 catalog.
type Client struct {
	http     *upstream.Client
	baseURL  string
	clientID string
	limit    int
}

// searchResponse is the response from GET /anime
type searchResponse struct {
	Data []struct {
		Node struct {
			ID          int64  `json:"id"`
			Title       string `json:"title"`
			MainPicture *struct {
				Medium string `json:"medium"`
				Large  string `json:"large"`
			} `json:"main_picture"`
			Popularity int `json:"popularity"`
		} `json:"node"`
	} `json:"data"`
}

// NewClient creates a catalog client. breaker configures the shared upstream
// circuit breaker.
func NewClient(cfg config.CatalogConfig, breaker config.BreakerConfig) *Client {
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Client{
		http: upstream.New("catalog", upstream.Options{
			Timeout:             cfg.Timeout,
			ConsecutiveFailures: breaker.ConsecutiveFailures,
			OpenTimeout:         breaker.OpenTimeout,
			RequestsPerSecond:   cfg.RequestsPerSecond,
		}),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		limit:    limit,
	}
}

// Search returns catalog hits for query: exact title matches first, then the
// rest by popularity rank.
func (c *Client) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	results, err := c.search(ctx, query, c.limit)
	if err != nil {
		return nil, err
	}
	return OrderResults(query, results), nil
}

// FindByTitle returns the catalog item that best matches title.
func (c *Client) FindByTitle(ctx context.Context, title string) (models.SearchResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.SearchResult{}, ErrEmptyQuery
	}
	results, err := c.search(ctx, title, findByTitleLimit)
	if err != nil {
		return models.SearchResult{}, err
	}
	best, score, ok := filter.BestMatch(title, results)
	if !ok {
		return models.SearchResult{}, fmt.Errorf("%w for %q (best score %.2f)", ErrNotFound, title, score)
	}
	return best, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", searchFields)
	endpoint := c.baseURL + "/anime?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MAL-CLIENT-ID", c.clientID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[catalog] search %q failed: %v", query, err)
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	var decoded searchResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		r := models.SearchResult{
			ID:         item.Node.ID,
			Title:      item.Node.Title,
			Popularity: item.Node.Popularity,
		}
		if item.Node.MainPicture != nil {
			r.MainPicture = models.Picture{
				Medium: item.Node.MainPicture.Medium,
				Large:  item.Node.MainPicture.Large,
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// OrderResults puts titles equal to query (ignoring case) first, keeping
// their relative order, followed by the rest sorted by ascending popularity
// rank. Items without a rank sort last. The input is not modified.
func OrderResults(query string, results []models.SearchResult) []models.SearchResult {
	lower := cases.Lower(language.Und)
	want := lower.String(strings.TrimSpace(query))

	exact := make([]models.SearchResult, 0, len(results))
	rest := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		if lower.String(r.Title) == want {
			exact = append(exact, r)
		} else {
			rest = append(rest, r)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return popularityRank(rest[i]) < popularityRank(rest[j])
	})
	return append(exact, rest...)
}

func popularityRank(r models.SearchResult) int {
	if r.Popularity <= 0 {
		return int(^uint(0) >> 1)
	}
	return r.Popularity
}
