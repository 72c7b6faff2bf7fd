package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "FEEDCORE_CONFIG"

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port" yaml:"port" validate:"required,numeric"`
	Env             string        `json:"env" yaml:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout" yaml:"http_timeout" validate:"gt=0"`

	// Redis configuration. An empty URL keeps ETags in process memory.
	RedisURL    string        `json:"redis_url" yaml:"redis_url"`
	RedisPrefix string        `json:"redis_prefix" yaml:"redis_prefix"`
	CacheTTL    time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// Remote endpoints; %s is replaced by the locale
	Locale             string         `json:"locale" yaml:"locale" validate:"required"`
	FeedURLTemplate    string         `json:"feed_url_template" yaml:"feed_url_template" validate:"required,contains=%s"`
	SourcesURLTemplate string         `json:"sources_url_template" yaml:"sources_url_template" validate:"required,contains=%s"`
	MatrixURLTemplate  string         `json:"matrix_url_template" yaml:"matrix_url_template" validate:"required,contains=%s"`
	DirectSources      []DirectSource `json:"direct_sources" yaml:"direct_sources" validate:"dive"`
	EnabledPublishers  []string       `json:"enabled_publishers" yaml:"enabled_publishers"`
	DisabledPublishers []string       `json:"disabled_publishers" yaml:"disabled_publishers"`
	MaxConcurrency     int            `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=1"`

	// CloudFlare R2 location of the similarity matrix; when the bucket is
	// empty the matrix is fetched over HTTP.
	R2Endpoint  string `json:"r2_endpoint" yaml:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key" yaml:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key" yaml:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket" yaml:"r2_bucket"`
	R2MatrixKey string `json:"r2_matrix_key" yaml:"r2_matrix_key" validate:"required_with=R2Bucket"`

	// History
	HistoryDBPath   string `json:"history_db_path" yaml:"history_db_path"`
	HistoryMaxCount int    `json:"history_max_count" yaml:"history_max_count" validate:"gte=1"`
	HistoryDayRange int    `json:"history_day_range" yaml:"history_day_range" validate:"gte=1"`

	// Refresh loop
	FeedCheckInterval     time.Duration `json:"feed_check_interval" yaml:"feed_check_interval"`
	MatrixRefreshInterval time.Duration `json:"matrix_refresh_interval" yaml:"matrix_refresh_interval"`

	Ranking Ranking `json:"ranking" yaml:"ranking"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`

	// Security
	AdminAPIKey string `json:"admin_api_key" yaml:"admin_api_key"`
}

// DirectSource is a user-added RSS feed
type DirectSource struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Name    string `json:"name" yaml:"name"`
	FeedURL string `json:"feed_url" yaml:"feed_url" validate:"required,url"`
}

// Ranking holds the tuned scoring constants and page templates
type Ranking struct {
	VisitedPenalty     float64       `json:"visited_penalty" yaml:"visited_penalty"`
	RecencyWindow      time.Duration `json:"recency_window" yaml:"recency_window" validate:"gt=0"`
	MaxPages           int           `json:"max_pages" yaml:"max_pages" validate:"gte=1"`
	PageContentOrder   []string      `json:"page_content_order" yaml:"page_content_order" validate:"min=1,dive,oneof=HEADLINE HEADLINE_PAIRED CATEGORY_GROUP PUBLISHER_GROUP DEALS DISPLAY_AD PROMOTED_ARTICLE"`
	RandomContentOrder []string      `json:"random_content_order" yaml:"random_content_order" validate:"dive,oneof=HEADLINE HEADLINE_PAIRED CATEGORY_GROUP PUBLISHER_GROUP DEALS DISPLAY_AD PROMOTED_ARTICLE"`
	DirectSourceScore  float64       `json:"direct_source_score" yaml:"direct_source_score"`

	VisitedMin             float64 `json:"visited_min" yaml:"visited_min" validate:"gte=0,lte=1"`
	VisitedMax             float64 `json:"visited_max" yaml:"visited_max" validate:"gte=0,lte=1,gtefield=VisitedMin"`
	SimilarVisitedMin      float64 `json:"similar_visited_min" yaml:"similar_visited_min" validate:"gte=0,lte=1"`
	SimilarVisitedMax      float64 `json:"similar_visited_max" yaml:"similar_visited_max" validate:"gte=0,lte=1,gtefield=SimilarVisitedMin"`
	SimilarSubscribedMin   float64 `json:"similar_subscribed_min" yaml:"similar_subscribed_min" validate:"gte=0,lte=1"`
	SimilarSubscribedMax   float64 `json:"similar_subscribed_max" yaml:"similar_subscribed_max" validate:"gte=0,lte=1,gtefield=SimilarSubscribedMin"`
	MaxSuggestedPublishers int     `json:"max_suggested_publishers" yaml:"max_suggested_publishers" validate:"gte=1"`
}

// DefaultRanking returns the reference scoring constants
func DefaultRanking() Ranking {
	return Ranking{
		VisitedPenalty: 5,
		RecencyWindow:  48 * time.Hour,
		MaxPages:       1000,
		PageContentOrder: []string{
			"HEADLINE", "HEADLINE", "HEADLINE_PAIRED", "PROMOTED_ARTICLE",
			"CATEGORY_GROUP", "HEADLINE", "HEADLINE", "HEADLINE_PAIRED",
			"HEADLINE_PAIRED", "DISPLAY_AD", "PUBLISHER_GROUP", "HEADLINE",
			"HEADLINE", "HEADLINE_PAIRED", "DEALS", "HEADLINE",
		},
		RandomContentOrder: []string{"HEADLINE", "HEADLINE_PAIRED", "HEADLINE"},
		DirectSourceScore:  10,

		VisitedMin:             0.4,
		VisitedMax:             1.0,
		SimilarVisitedMin:      0.2,
		SimilarVisitedMax:      0.4,
		SimilarSubscribedMin:   0,
		SimilarSubscribedMax:   0.2,
		MaxSuggestedPublishers: 15,
	}
}

// Load loads configuration from environment variables and an optional YAML
// overlay, applies overrides in order and validates the result
func Load(overrides ...func(*Config)) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		// Redis configuration
		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "feedcore:"),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 24*time.Hour),

		// Remote endpoints
		Locale:             getEnv("LOCALE", "en_US"),
		FeedURLTemplate:    getEnv("FEED_URL_TEMPLATE", "https://brave-today-cdn.brave.com/brave-today/feed.%s.json"),
		SourcesURLTemplate: getEnv("SOURCES_URL_TEMPLATE", "https://brave-today-cdn.brave.com/sources.%s.json"),
		MatrixURLTemplate:  getEnv("MATRIX_URL_TEMPLATE", "https://brave-today-cdn.brave.com/source-suggestions/source_similarity_t10.%s.json"),
		EnabledPublishers:  getEnvAsList("ENABLED_PUBLISHERS"),
		DisabledPublishers: getEnvAsList("DISABLED_PUBLISHERS"),
		MaxConcurrency:     getEnvAsInt("MAX_CONCURRENCY", 5),

		// CloudFlare R2 Configuration
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", ""),
		R2MatrixKey: getEnv("R2_MATRIX_KEY", "source-suggestions/source_similarity_t10.%s.json"),

		// History
		HistoryDBPath:   getEnv("HISTORY_DB_PATH", ""),
		HistoryMaxCount: getEnvAsInt("HISTORY_MAX_COUNT", 2000),
		HistoryDayRange: getEnvAsInt("HISTORY_DAY_RANGE", 14),

		// Refresh loop
		FeedCheckInterval:     getEnvAsDuration("FEED_CHECK_INTERVAL", time.Hour),
		MatrixRefreshInterval: getEnvAsDuration("MATRIX_REFRESH_INTERVAL", 3*time.Hour),

		Ranking: DefaultRanking(),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Security
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
	cfg.Ranking.VisitedPenalty = getEnvAsFloat("VISITED_PENALTY", cfg.Ranking.VisitedPenalty)
	cfg.Ranking.MaxSuggestedPublishers = getEnvAsInt("MAX_SUGGESTED_PUBLISHERS", cfg.Ranking.MaxSuggestedPublishers)

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, fmt.Errorf("config overlay: %w", err)
		}
	}

	for _, override := range overrides {
		override(cfg)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyFile overlays the YAML document at path on top of cfg. Keys missing
// from the document keep their current value.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// FeedURL returns the aggregated feed location for locale
func (c *Config) FeedURL(locale string) string {
	return fmt.Sprintf(c.FeedURLTemplate, locale)
}

// SourcesURL returns the publisher directory location for locale
func (c *Config) SourcesURL(locale string) string {
	return fmt.Sprintf(c.SourcesURLTemplate, locale)
}

// MatrixURL returns the similarity matrix location for locale
func (c *Config) MatrixURL(locale string) string {
	return fmt.Sprintf(c.MatrixURLTemplate, locale)
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsList(name string) []string {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
