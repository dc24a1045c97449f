package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Security   SecurityConfig
	CORS       CORSConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Classifier ClassifierConfig
	Setlist    SetlistConfig
	Matching   MatchingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string // Full PostgreSQL URL
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	JWTSecret string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// RedisConfig configures the lineup cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	LineupTTL time.Duration
}

// ClassifierConfig configures the content analysis service.
type ClassifierConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Workers int
}

// SetlistConfig configures the external setlist source.
type SetlistConfig struct {
	APIKey     string
	BaseURL    string
	WindowDays int
	Timeout    time.Duration
}

// MatchingConfig carries the ranker's tunable thresholds.
type MatchingConfig struct {
	SuggestThreshold  float64
	AutoLinkThreshold float64
	AutoLinkOverall   float64
	DateToleranceDays int
	ArtistWeight      float64
	VenueWeight       float64
	DateWeight        float64
}

// Load reads configuration from the environment, after applying any .env files.
func Load() (*Config, error) {
	for _, file := range []string{".env", "config/local.env"} {
		_ = godotenv.Load(file)
	}

	cfg := &Config{}

	if err := cfg.loadDatabase(); err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	if err := cfg.loadServer(); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	cfg.Security.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.loadCORS()
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvOrDefault("LOG_FORMAT", "json")

	if err := cfg.loadIntegrations(); err != nil {
		return nil, err
	}
	if err := cfg.loadMatching(); err != nil {
		return nil, fmt.Errorf("load matching config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDatabase resolves only the database settings. cmd/migrate uses it so
// schema changes do not need the service's secrets.
func LoadDatabase() (DatabaseConfig, error) {
	for _, file := range []string{".env", "config/local.env"} {
		_ = godotenv.Load(file)
	}
	cfg := &Config{}
	if err := cfg.loadDatabase(); err != nil {
		return DatabaseConfig{}, fmt.Errorf("load database config: %w", err)
	}
	return cfg.Database, nil
}

func (c *Config) loadDatabase() error {
	c.Database.URL = os.Getenv("DATABASE_URL")
	if c.Database.URL != "" {
		return nil
	}

	c.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
	c.Database.User = os.Getenv("DB_USER")
	c.Database.Password = os.Getenv("DB_PASSWORD")
	c.Database.Name = os.Getenv("DB_NAME")
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	port, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return err
	}
	c.Database.Port = port

	if c.Database.Host != "" && c.Database.User != "" && c.Database.Name != "" {
		c.Database.URL = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			c.Database.User,
			c.Database.Password,
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
			c.Database.SSLMode,
		)
	}
	return nil
}

func (c *Config) loadServer() error {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return err
	}
	c.Server.Port = port
	c.Server.Host = getEnvOrDefault("HOST", "0.0.0.0")
	return nil
}

func (c *Config) loadCORS() {
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173"}
		return
	}
	for _, origin := range strings.Split(originsEnv, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, trimmed)
		}
	}
}

func (c *Config) loadIntegrations() error {
	var err error

	c.Redis.Addr = os.Getenv("REDIS_ADDR")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if c.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return err
	}
	if c.Redis.LineupTTL, err = getEnvDuration("LINEUP_CACHE_TTL", 6*time.Hour); err != nil {
		return err
	}

	c.Classifier.URL = os.Getenv("CLASSIFIER_URL")
	c.Classifier.APIKey = os.Getenv("CLASSIFIER_API_KEY")
	if c.Classifier.Timeout, err = getEnvDuration("CLASSIFIER_TIMEOUT", 90*time.Second); err != nil {
		return err
	}
	if c.Classifier.Workers, err = getEnvInt("ANALYSIS_WORKERS", 4); err != nil {
		return err
	}

	c.Setlist.APIKey = os.Getenv("SETLISTFM_API_KEY")
	c.Setlist.BaseURL = getEnvOrDefault("SETLISTFM_BASE_URL", "https://api.setlist.fm/rest/1.0")
	if c.Setlist.WindowDays, err = getEnvInt("LINEUP_WINDOW_DAYS", 3); err != nil {
		return err
	}
	if c.Setlist.Timeout, err = getEnvDuration("LINEUP_TIMEOUT", 8*time.Second); err != nil {
		return err
	}
	return nil
}

func (c *Config) loadMatching() error {
	var err error
	m := &c.Matching
	if m.SuggestThreshold, err = getEnvFloat("MATCH_SUGGEST_THRESHOLD", 0.4); err != nil {
		return err
	}
	if m.AutoLinkThreshold, err = getEnvFloat("MATCH_AUTOLINK_THRESHOLD", 0.85); err != nil {
		return err
	}
	if m.AutoLinkOverall, err = getEnvFloat("MATCH_AUTOLINK_OVERALL", 0.9); err != nil {
		return err
	}
	if m.DateToleranceDays, err = getEnvInt("MATCH_DATE_TOLERANCE_DAYS", 1); err != nil {
		return err
	}
	if m.ArtistWeight, err = getEnvFloat("MATCH_WEIGHT_ARTIST", 0.5); err != nil {
		return err
	}
	if m.VenueWeight, err = getEnvFloat("MATCH_WEIGHT_VENUE", 0.3); err != nil {
		return err
	}
	if m.DateWeight, err = getEnvFloat("MATCH_WEIGHT_DATE", 0.2); err != nil {
		return err
	}
	return nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var problems []string

	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}

	if len(c.Security.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	if c.Classifier.URL == "" {
		problems = append(problems, "CLASSIFIER_URL is required")
	}
	if c.Classifier.Workers < 1 {
		problems = append(problems, "ANALYSIS_WORKERS must be at least 1")
	}
	if c.Setlist.WindowDays < 0 {
		problems = append(problems, "LINEUP_WINDOW_DAYS must not be negative")
	}

	m := c.Matching
	for name, v := range map[string]float64{
		"MATCH_SUGGEST_THRESHOLD":  m.SuggestThreshold,
		"MATCH_AUTOLINK_THRESHOLD": m.AutoLinkThreshold,
		"MATCH_AUTOLINK_OVERALL":   m.AutoLinkOverall,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, name+" must be between 0 and 1")
		}
	}
	if m.DateToleranceDays < 0 {
		problems = append(problems, "MATCH_DATE_TOLERANCE_DAYS must not be negative")
	}
	if sum := m.ArtistWeight + m.VenueWeight + m.DateWeight; sum < 0.999 || sum > 1.001 {
		problems = append(problems, "MATCH_WEIGHT_ARTIST, MATCH_WEIGHT_VENUE and MATCH_WEIGHT_DATE must sum to 1")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
