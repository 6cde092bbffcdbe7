// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process
// exits. A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the automation service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Timezone is the IANA location used for daily-budget rollover and the
	// cleanup/worker-kick cron entries.
	Timezone string

	// Job board credentials. An adapter with missing credentials is skipped
	// at search time, never treated as an error.
	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string // e.g. "us", "gb", "fr"
	JoobleAPIKey  string

	// ExtractorURL points at the external skill-extraction service. Empty
	// means the offline heuristic is used directly.
	ExtractorURL string

	// DailyLimit is the application budget per calendar day. GlobalBudget
	// switches the budget from candidate-scoped to one shared counter.
	DailyLimit   int
	GlobalBudget bool

	// DelayMinSec/DelayMaxSec bound the randomized pause between two
	// consecutive task executions.
	DelayMinSec int
	DelayMaxSec int

	FetchIntervalHours int // how often the ingestion sweep fires
	RetentionDays      int // postings older than this are deactivated
	SearchResultLimit  int // per-adapter cap for one search
	FillTimeoutSec     int // timeout for one form-fill attempt

	SuggestionLevel string // conservative | balanced | aggressive
	SkillsFile      string // optional YAML overriding the skill dictionaries

	TelegramToken  string
	TelegramChatID int64

	Headless    bool
	ArtifactDir string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg := &Config{
		Port:               envOr("AUTOMATION_PORT", "8083"),
		DatabaseURL:        dbURL,
		RedisURL:           redisURL,
		Timezone:           envOr("TIMEZONE", "UTC"),
		AdzunaAppID:        os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:       os.Getenv("ADZUNA_APP_KEY"),
		AdzunaCountry:      envOr("ADZUNA_COUNTRY", "us"),
		JoobleAPIKey:       os.Getenv("JOOBLE_API_KEY"),
		ExtractorURL:       os.Getenv("EXTRACTOR_URL"),
		SuggestionLevel:    envOr("SUGGESTION_LEVEL", "balanced"),
		SkillsFile:         os.Getenv("SKILLS_FILE"),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		Headless:           envOr("HEADLESS", "true") != "false",
		ArtifactDir:        envOr("ARTIFACT_DIR", "./artifacts"),
		GlobalBudget:       os.Getenv("GLOBAL_BUDGET") == "true",
	}

	var err error
	if cfg.DailyLimit, err = envInt("DAILY_APPLICATION_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.DelayMinSec, err = envInt("APPLICATION_DELAY_MIN", 20); err != nil {
		return nil, err
	}
	if cfg.DelayMaxSec, err = envInt("APPLICATION_DELAY_MAX", 90); err != nil {
		return nil, err
	}
	if cfg.FetchIntervalHours, err = envInt("FETCH_INTERVAL_HOURS", 6); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = envInt("RETENTION_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.SearchResultLimit, err = envInt("SEARCH_RESULT_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.FillTimeoutSec, err = envInt("FILL_TIMEOUT_SECONDS", 120); err != nil {
		return nil, err
	}

	if s := os.Getenv("TELEGRAM_CHAT_ID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer, got %q", s)
		}
		cfg.TelegramChatID = id
	}

	if cfg.DailyLimit < 1 {
		return nil, fmt.Errorf("DAILY_APPLICATION_LIMIT must be >= 1, got %d", cfg.DailyLimit)
	}
	if cfg.DelayMinSec < 0 || cfg.DelayMaxSec < cfg.DelayMinSec {
		return nil, fmt.Errorf("application delay range [%d, %d] is invalid",
			cfg.DelayMinSec, cfg.DelayMaxSec)
	}
	if cfg.FetchIntervalHours < 1 {
		return nil, fmt.Errorf("FETCH_INTERVAL_HOURS must be >= 1, got %d", cfg.FetchIntervalHours)
	}
	switch cfg.SuggestionLevel {
	case "conservative", "balanced", "aggressive":
	default:
		return nil, fmt.Errorf("SUGGESTION_LEVEL must be conservative, balanced or aggressive, got %q",
			cfg.SuggestionLevel)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return v, nil
}
