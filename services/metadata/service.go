package metadata

import (
	"context"
	"log"
	"strconv"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"animeshelf/config"
	"animeshelf/internal/metrics"
	"animeshelf/internal/upstream"
	"animeshelf/models"
)

// PlaceholderSynopsis is shown when details could not be fetched.
const PlaceholderSynopsis = "Failed to fetch description."

// Service enriches list entries with extended details. Successful lookups are
// cached for the configured TTL; failures are not cached.
type Service struct {
	client  *jikanClient
	cache   *expirable.LRU[int64, models.Enrichment]
	group   singleflight.Group
	workers int
}

// NewService creates the enrichment service. All calls share one rate
// limiter and circuit breaker.
func NewService(cfg config.DetailsConfig, breaker config.BreakerConfig) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	upstreamClient := upstream.New("details", upstream.Options{
		Timeout:             cfg.Timeout,
		RequestsPerSecond:   cfg.RequestsPerSecond,
		ConsecutiveFailures: breaker.ConsecutiveFailures,
		OpenTimeout:         breaker.OpenTimeout,
	})
	return &Service{
		client:  newJikanClient(upstreamClient, cfg.BaseURL),
		cache:   expirable.NewLRU[int64, models.Enrichment](size, nil, cfg.CacheTTL),
		workers: workers,
	}
}

// Placeholder is the enrichment used when a lookup fails.
func Placeholder(entry models.ListEntry) models.Enrichment {
	genres := entry.Genres
	if genres == nil {
		genres = []string{}
	}
	return models.Enrichment{
		Synopsis: PlaceholderSynopsis,
		Year:     unknownYear,
		Studio:   unknownStudio,
		Genres:   append([]string(nil), genres...),
	}
}

// Fetch returns the details for id, from cache when possible. Concurrent
// fetches of the same id share one upstream request.
func (s *Service) Fetch(ctx context.Context, id int64) (models.Enrichment, error) {
	if cached, ok := s.cache.Get(id); ok {
		metrics.EnrichmentCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.EnrichmentCache.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller; the client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		details, err := s.client.GetAnime(shared, id)
		if err != nil {
			return models.Enrichment{}, err
		}
		s.cache.Add(id, details)
		return details, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.Enrichment{}, res.Err
		}
		return res.Val.(models.Enrichment), nil
	case <-ctx.Done():
		return models.Enrichment{}, ctx.Err()
	}
}

// EnrichAll fetches details for every entry using a bounded worker pool. The
// output order matches entries. Entries whose lookup fails get Placeholder.
func (s *Service) EnrichAll(ctx context.Context, entries []models.ListEntry) []models.EnrichedEntry {
	out := make([]models.EnrichedEntry, len(entries))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, entry := range entries {
		p.Go(func() {
			out[i] = s.enrich(ctx, entry)
		})
	}
	p.Wait()
	return out
}

func (s *Service) enrich(ctx context.Context, entry models.ListEntry) models.EnrichedEntry {
	details, err := s.Fetch(ctx, entry.ID)
	if err != nil {
		log.Printf("[metadata] details for %d (%s) unavailable: %v", entry.ID, entry.Title, err)
		return models.EnrichedEntry{ListEntry: entry, Details: Placeholder(entry)}
	}
	if len(details.Genres) == 0 && len(entry.Genres) > 0 {
		details.Genres = append([]string(nil), entry.Genres...)
	}
	return models.EnrichedEntry{ListEntry: entry, Details: details}
}
