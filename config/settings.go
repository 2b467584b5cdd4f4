package config

// Settings is the persisted server configuration.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Database  DatabaseSettings  `json:"database"`
	Auth      AuthSettings      `json:"auth"`
	Lists     ListSettings      `json:"lists"`
	Catalog   CatalogSettings   `json:"catalog"`
	Details   DetailsSettings   `json:"details"`
	Recommend RecommendSettings `json:"recommend"`
	Upstream  UpstreamSettings  `json:"upstream"`
	Logging   LoggingSettings   `json:"logging"`
}

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port" env:"PORT"`
}

// DatabaseSettings points at the SQLite file.
type DatabaseSettings struct {
	Path string `json:"path" env:"DATABASE_PATH"`
}

// AuthSettings controls session issuing.
type AuthSettings struct {
	// JWTSecret signs session tokens. When empty a random secret is generated
	// at startup and sessions do not survive a restart.
	JWTSecret            string `json:"jwtSecret" env:"JWT_SECRET"`
	SessionTTLHours      int    `json:"sessionTtlHours"`
	RequireVerifiedEmail bool   `json:"requireVerifiedEmail"`
}

// ListSettings controls list membership policy.
type ListSettings struct {
	// Exclusive keeps an item id in at most one list.
	Exclusive          bool `json:"exclusive"`
	MaxConflictRetries int  `json:"maxConflictRetries"`
}

// CatalogSettings configures the MyAnimeList search client.
type CatalogSettings struct {
	BaseURL           string  `json:"baseUrl"`
	ClientID          string  `json:"clientId" env:"MAL_CLIENT_ID"`
	Limit             int     `json:"limit"`
	TimeoutSeconds    int     `json:"timeoutSeconds"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
}

// DetailsSettings configures the detail enrichment client.
type DetailsSettings struct {
	BaseURL           string  `json:"baseUrl"`
	TimeoutSeconds    int     `json:"timeoutSeconds"`
	Workers           int     `json:"workers"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	CacheTTLSeconds   int     `json:"cacheTtlSeconds"`
	CacheSize         int     `json:"cacheSize"`
}

// RecommendSettings configures the chat-completion client.
type RecommendSettings struct {
	BaseURL           string  `json:"baseUrl" env:"LLM_BASE_URL"`
	APIKey            string  `json:"apiKey" env:"LLM_API_KEY"`
	Model             string  `json:"model" env:"LLM_MODEL"`
	Count             int     `json:"count"`
	TopGenres         int     `json:"topGenres"`
	Temperature       float64 `json:"temperature"`
	LookupWorkers     int     `json:"lookupWorkers"`
	TimeoutSeconds    int     `json:"timeoutSeconds"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
}

// UpstreamSettings tunes the circuit breaker shared by all external clients.
type UpstreamSettings struct {
	BreakerFailures       int `json:"breakerFailures"`
	BreakerTimeoutSeconds int `json:"breakerTimeoutSeconds"`
}

// LoggingSettings controls the slog handler and optional rotated file.
type LoggingSettings struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
}

// DefaultSettings returns the configuration used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 7777,
		},
		Database: DatabaseSettings{
			Path: "data/animeshelf.db",
		},
		Auth: AuthSettings{
			SessionTTLHours: 24 * 30,
		},
		Lists: ListSettings{
			Exclusive:          false,
			MaxConflictRetries: 5,
		},
		Catalog: CatalogSettings{
			BaseURL:           "https://api.myanimelist.net/v2",
			Limit:             50,
			TimeoutSeconds:    15,
			RequestsPerSecond: 5,
		},
		Details: DetailsSettings{
			BaseURL:           "https://api.jikan.moe/v4",
			TimeoutSeconds:    15,
			Workers:           3,
			RequestsPerSecond: 3,
			CacheTTLSeconds:   600,
			CacheSize:         1024,
		},
		Recommend: RecommendSettings{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Count:             10,
			TopGenres:         5,
			Temperature:       0.7,
			LookupWorkers:     4,
			TimeoutSeconds:    60,
			RequestsPerSecond: 1,
		},
		Upstream: UpstreamSettings{
			BreakerFailures:       5,
			BreakerTimeoutSeconds: 30,
		},
		Logging: LoggingSettings{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}
