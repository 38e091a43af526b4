package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/review"
)

// Default file names inside DataDir.
const (
	DefaultDatabaseFile  = "tariff.db"
	DefaultLaterListFile = "review_later.json"
)

// Config is the fully resolved application configuration.
type Config struct {
	Classifier    classifier.Config
	DatabasePath  string
	UserID        string
	LaterPath     string
	MetricsListen string
	LogLevel      string
	LogFormat     string
	Engine        engine.Config
	Review        review.Config
}

// SetDefaults registers every default on v. Keys set in a config file, the
// environment or flags take precedence.
func SetDefaults(v *viper.Viper) {
	engineDefaults := engine.DefaultConfig()
	reviewDefaults := review.DefaultConfig()

	v.SetDefault("database.path", filepath.Join(DataDir(), DefaultDatabaseFile))
	v.SetDefault("classifier.timeout", 30*time.Second)
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.retry_delay", time.Second)
	v.SetDefault("classifier.rate_limit", 60)
	v.SetDefault("classifier.cache_ttl", 15*time.Minute)
	v.SetDefault("clarification.max_rounds", engineDefaults.MaxRounds)
	v.SetDefault("clarification.call_timeout", engineDefaults.CallTimeout)
	v.SetDefault("review.max_alternatives", reviewDefaults.MaxAlternatives)
	v.SetDefault("review.ruling_timeout", reviewDefaults.RulingTimeout)
	v.SetDefault("review.later_path", filepath.Join(DataDir(), DefaultLaterListFile))
	v.SetDefault("bulk.workers", engineDefaults.Workers)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads and validates the configuration held by v. Defaults must already
// be registered with SetDefaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath:  ExpandPath(v.GetString("database.path")),
		UserID:        strings.TrimSpace(v.GetString("user.id")),
		LaterPath:     ExpandPath(v.GetString("review.later_path")),
		MetricsListen: v.GetString("metrics.listen"),
		LogLevel:      strings.ToLower(v.GetString("logging.level")),
		LogFormat:     strings.ToLower(v.GetString("logging.format")),
		Classifier: classifier.Config{
			Endpoint:   v.GetString("classifier.endpoint"),
			APIKey:     v.GetString("classifier.api_key"),
			Timeout:    v.GetDuration("classifier.timeout"),
			RetryDelay: v.GetDuration("classifier.retry_delay"),
			CacheTTL:   v.GetDuration("classifier.cache_ttl"),
			MaxRetries: v.GetInt("classifier.max_retries"),
			RateLimit:  v.GetInt("classifier.rate_limit"),
		},
		Engine: engine.Config{
			CallTimeout: v.GetDuration("clarification.call_timeout"),
			MaxRounds:   v.GetInt("clarification.max_rounds"),
			Workers:     v.GetInt("bulk.workers"),
		},
		Review: review.Config{
			MaxAlternatives: v.GetInt("review.max_alternatives"),
			RulingTimeout:   v.GetDuration("review.ruling_timeout"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. A missing user id is not an error here; the
// operations that need one report it as unauthenticated.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabasePath == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Classifier.Timeout < 0 || c.Classifier.RetryDelay < 0 || c.Classifier.CacheTTL < 0 {
		problems = append(problems, "classifier durations cannot be negative")
	}
	if c.Classifier.MaxRetries < 0 {
		problems = append(problems, "classifier.max_retries cannot be negative")
	}
	if c.Classifier.RateLimit < 0 {
		problems = append(problems, "classifier.rate_limit cannot be negative")
	}
	if c.Engine.MaxRounds < 0 {
		problems = append(problems, "clarification.max_rounds cannot be negative")
	}
	if c.Engine.Workers < 1 {
		problems = append(problems, "bulk.workers must be at least 1")
	}
	if c.Review.MaxAlternatives < 0 {
		problems = append(problems, "review.max_alternatives cannot be negative")
	}
	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level: %s", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format: %s", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
