package config

import (
	"sync"
	"time"
)

// ClientsConfig is the subset of configuration the external API clients need.
type ClientsConfig struct {
	Catalog   CatalogConfig
	Details   DetailsConfig
	Recommend RecommendConfig
	Breaker   BreakerConfig
}

// CatalogConfig configures the catalog search client.
type CatalogConfig struct {
	BaseURL           string
	ClientID          string
	Limit             int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// DetailsConfig configures the enrichment client.
type DetailsConfig struct {
	BaseURL           string
	Timeout           time.Duration
	Workers           int
	RequestsPerSecond float64
	CacheTTL          time.Duration
	CacheSize         int
}

// RecommendConfig configures the recommendation client.
type RecommendConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Count             int
	TopGenres         int
	Temperature       float64
	LookupWorkers     int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// BreakerConfig configures the per-upstream circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// ConfigGetter is a function that returns the current client configuration.
type ConfigGetter func() *ClientsConfig

// ConfigAdapter adapts persisted Settings to the clients' ConfigGetter.
type ConfigAdapter struct {
	manager *Manager
	mu      sync.RWMutex
}

// NewConfigAdapter creates a new config adapter
func NewConfigAdapter(manager *Manager) *ConfigAdapter {
	return &ConfigAdapter{
		manager: manager,
	}
}

// GetConfig returns the current client configuration. Zero or missing values
// fall back to the defaults.
func (ca *ConfigAdapter) GetConfig() *ClientsConfig {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	settings, err := ca.manager.Load()
	if err != nil {
		// Return defaults on error
		settings = DefaultSettings()
	}
	return ClientsFromSettings(settings)
}

// GetConfigGetter returns a ConfigGetter function
func (ca *ConfigAdapter) GetConfigGetter() ConfigGetter {
	return ca.GetConfig
}

// ClientsFromSettings converts settings, filling unset fields from
// DefaultSettings.
func ClientsFromSettings(s Settings) *ClientsConfig {
	d := DefaultSettings()

	return &ClientsConfig{
		Catalog: CatalogConfig{
			BaseURL:           orString(s.Catalog.BaseURL, d.Catalog.BaseURL),
			ClientID:          s.Catalog.ClientID,
			Limit:             orInt(s.Catalog.Limit, d.Catalog.Limit),
			Timeout:           seconds(orInt(s.Catalog.TimeoutSeconds, d.Catalog.TimeoutSeconds)),
			RequestsPerSecond: orFloat(s.Catalog.RequestsPerSecond, d.Catalog.RequestsPerSecond),
		},
		Details: DetailsConfig{
			BaseURL:           orString(s.Details.BaseURL, d.Details.BaseURL),
			Timeout:           seconds(orInt(s.Details.TimeoutSeconds, d.Details.TimeoutSeconds)),
			Workers:           orInt(s.Details.Workers, d.Details.Workers),
			RequestsPerSecond: orFloat(s.Details.RequestsPerSecond, d.Details.RequestsPerSecond),
			CacheTTL:          seconds(orInt(s.Details.CacheTTLSeconds, d.Details.CacheTTLSeconds)),
			CacheSize:         orInt(s.Details.CacheSize, d.Details.CacheSize),
		},
		Recommend: RecommendConfig{
			BaseURL:           orString(s.Recommend.BaseURL, d.Recommend.BaseURL),
			APIKey:            s.Recommend.APIKey,
			Model:             orString(s.Recommend.Model, d.Recommend.Model),
			Count:             orInt(s.Recommend.Count, d.Recommend.Count),
			TopGenres:         orInt(s.Recommend.TopGenres, d.Recommend.TopGenres),
			Temperature:       orFloat(s.Recommend.Temperature, d.Recommend.Temperature),
			LookupWorkers:     orInt(s.Recommend.LookupWorkers, d.Recommend.LookupWorkers),
			Timeout:           seconds(orInt(s.Recommend.TimeoutSeconds, d.Recommend.TimeoutSeconds)),
			RequestsPerSecond: orFloat(s.Recommend.RequestsPerSecond, d.Recommend.RequestsPerSecond),
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: uint32(orInt(s.Upstream.BreakerFailures, d.Upstream.BreakerFailures)),
			OpenTimeout:         seconds(orInt(s.Upstream.BreakerTimeoutSeconds, d.Upstream.BreakerTimeoutSeconds)),
		},
	}
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
