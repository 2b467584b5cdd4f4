package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"animeshelf/internal/upstream"
	"animeshelf/models"
)

const (
	unknownYear   = "Unknown"
	unknownStudio = "Unknown Studio"
)

// jikanClient handles requests to a Jikan-style anime detail API
type jikanClient struct {
	http    *upstream.Client
	baseURL string
}

// jikanAnimeResponse is the response from the /anime/{id} endpoint
type jikanAnimeResponse struct {
	Data struct {
		Synopsis *string `json:"synopsis"` // null for unreleased titles
		Year     *int    `json:"year"`
		Aired    struct {
			Prop struct {
				From struct {
					Year *int `json:"year"`
				} `json:"from"`
			} `json:"prop"`
		} `json:"aired"`
		Studios []struct {
			Name string `json:"name"`
		} `json:"studios"`
		Genres []struct {
			Name string `json:"name"`
		} `json:"genres"`
	} `json:"data"`
}

func newJikanClient(httpClient *upstream.Client, baseURL string) *jikanClient {
	return &jikanClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// GetAnime fetches extended details for a catalog id.
func (c *jikanClient) GetAnime(ctx context.Context, id int64) (models.Enrichment, error) {
	url := c.baseURL + "/anime/" + strconv.FormatInt(id, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[jikan] request for %d failed: %v", id, err)
		return models.Enrichment{}, fmt.Errorf("fetch anime %d: %w", id, err)
	}

	var result jikanAnimeResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return models.Enrichment{}, fmt.Errorf("decode response: %w", err)
	}
	return toEnrichment(result), nil
}

func toEnrichment(result jikanAnimeResponse) models.Enrichment {
	d := result.Data
	out := models.Enrichment{
		Year:   unknownYear,
		Studio: unknownStudio,
		Genres: make([]string, 0, len(d.Genres)),
	}
	if d.Synopsis != nil {
		out.Synopsis = strings.TrimSpace(*d.Synopsis)
	}
	switch {
	case d.Year != nil && *d.Year > 0:
		out.Year = strconv.Itoa(*d.Year)
	case d.Aired.Prop.From.Year != nil && *d.Aired.Prop.From.Year > 0:
		out.Year = strconv.Itoa(*d.Aired.Prop.From.Year)
	}
	if len(d.Studios) > 0 && strings.TrimSpace(d.Studios[0].Name) != "" {
		out.Studio = d.Studios[0].Name
	}
	for _, g := range d.Genres {
		if g.Name != "" {
			out.Genres = append(out.Genres, g.Name)
		}
	}
	return out
}
