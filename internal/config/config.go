package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultProtocolsURL      = "https://api.llama.fi/lite/protocols2"
	DefaultPhishingConfigURL = "https://raw.githubusercontent.com/MetaMask/eth-phishing-detect/master/src/config.json"
	DefaultDirectoryURL      = "https://raw.githubusercontent.com/DefiLlama/url-directory/master/domains.json"
)

type Config struct {
	RedisHost          string
	RedisPort          string
	Port               string
	AdminToken         string
	LogLevel           string
	UpdateFrequency    time.Duration
	SchedulePeriod     time.Duration
	CacheResetInterval time.Duration
	MaxSnapshotAge     time.Duration
	CacheVersion       string
	ProtocolsURL       string
	PhishingConfigURL  string
	DirectoryURL       string
	TVLThreshold       float64
	ExtraAllowed       []string
	FuzzyTolerance     int
	FuzzyAgainst       string
	HomoglyphAgainst   string
	FeedTimeout        time.Duration
	FeedMaxAttempts    int
}

func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		Port:              getEnv("PORT", "5000"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CacheVersion:      getEnv("CACHE_VERSION", "1"),
		ProtocolsURL:      getEnv("PROTOCOLS_URL", DefaultProtocolsURL),
		PhishingConfigURL: getEnv("PHISHING_CONFIG_URL", DefaultPhishingConfigURL),
		DirectoryURL:      getEnv("DIRECTORY_URL", DefaultDirectoryURL),
		ExtraAllowed:      getEnvList("EXTRA_ALLOWED", []string{"x.com"}),
		FuzzyAgainst:      strings.ToLower(getEnv("FUZZY_AGAINST", "seeds")),
		HomoglyphAgainst:  strings.ToLower(getEnv("HOMOGLYPH_AGAINST", "allowed")),
	}

	var err error
	if cfg.UpdateFrequency, err = getEnvDuration("UPDATE_FREQUENCY", 4*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UpdateFrequency < time.Hour || cfg.UpdateFrequency > 48*time.Hour {
		return nil, fmt.Errorf("UPDATE_FREQUENCY must be between 1h and 48h, got %s", cfg.UpdateFrequency)
	}
	if cfg.SchedulePeriod, err = getEnvDuration("SCHEDULE_PERIOD", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SchedulePeriod < time.Minute {
		return nil, fmt.Errorf("SCHEDULE_PERIOD too small (%s), must be >=1m", cfg.SchedulePeriod)
	}
	if cfg.CacheResetInterval, err = getEnvDuration("CACHE_RESET_INTERVAL", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxSnapshotAge, err = getEnvDuration("MAX_SNAPSHOT_AGE", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FeedTimeout, err = getEnvDuration("FEED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TVLThreshold, err = getEnvFloat("TVL_THRESHOLD", 5_000_000); err != nil {
		return nil, err
	}
	if cfg.FuzzyTolerance, err = getEnvInt("FUZZY_TOLERANCE", 3); err != nil {
		return nil, err
	}
	if cfg.FuzzyTolerance < 0 {
		return nil, fmt.Errorf("FUZZY_TOLERANCE must not be negative")
	}
	if cfg.FeedMaxAttempts, err = getEnvInt("FEED_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.FeedMaxAttempts < 1 {
		return nil, fmt.Errorf("FEED_MAX_ATTEMPTS must be >=1")
	}

	switch cfg.FuzzyAgainst {
	case "seeds", "allowed":
	default:
		return nil, fmt.Errorf("FUZZY_AGAINST must be seeds or allowed, got %q", cfg.FuzzyAgainst)
	}
	switch cfg.HomoglyphAgainst {
	case "allowed", "fuzzy":
	default:
		return nil, fmt.Errorf("HOMOGLYPH_AGAINST must be allowed or fuzzy, got %q", cfg.HomoglyphAgainst)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return f, nil
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
