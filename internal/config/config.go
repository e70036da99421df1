package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Question describes one fixed survey question. Only the pieces the backend
// needs are modelled; labels and options exist for the statistics API and the
// adaptive-question prompt, the Type drives free-text collection.
type Question struct {
	FieldName string   `yaml:"field_name"`
	Type      string   `yaml:"type"` // "choice", "scale" or "text"
	Label     string   `yaml:"label"`
	Options   []string `yaml:"options,omitempty"`
}

// LimiterConfig configures one sliding-window rate limiter.
type LimiterConfig struct {
	MaxRequests int   `yaml:"max_requests"`
	WindowMs    int64 `yaml:"window_ms"`
}

func (l LimiterConfig) Window() time.Duration {
	return time.Duration(l.WindowMs) * time.Millisecond
}

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Gemini struct {
		APIKey     string `yaml:"api_key"`
		FlashModel string `yaml:"flash_model"`
		ProModel   string `yaml:"pro_model"`
	} `yaml:"gemini"`
	RateLimits struct {
		AI     LimiterConfig `yaml:"ai"`
		Read   LimiterConfig `yaml:"read"`
		Submit LimiterConfig `yaml:"submit"`
	} `yaml:"rate_limits"`
	Operational struct {
		MinSubmissionsForAI     int   `yaml:"min_submissions_for_ai"`
		ThemeExtractionInterval int   `yaml:"theme_extraction_interval"`
		InsightInterval         int   `yaml:"insight_interval"`
		InsightCooldownMs       int64 `yaml:"insight_cooldown_ms"`
		StatisticsCacheTTLMs    int64 `yaml:"statistics_cache_ttl_ms"`
		EmergingGapThreshold    int   `yaml:"emerging_gap_threshold"`
	} `yaml:"operational"`
	Questions struct {
		Fixed []Question `yaml:"fixed"`
	} `yaml:"questions"`
	Prompts struct {
		Moderation        string `yaml:"moderation"`
		ThemeExtraction   string `yaml:"theme_extraction"`
		InsightSystem     string `yaml:"insight_system"`
		InsightUser       string `yaml:"insight_user"`
		AdaptiveQuestions string `yaml:"adaptive_questions"`
	} `yaml:"prompts"`
	FallbackThemeKeywords map[string][]string `yaml:"fallback_theme_keywords"`
}

func (c *Config) InsightCooldown() time.Duration {
	return time.Duration(c.Operational.InsightCooldownMs) * time.Millisecond
}

func (c *Config) StatisticsCacheTTL() time.Duration {
	return time.Duration(c.Operational.StatisticsCacheTTLMs) * time.Millisecond
}

// TextFieldNames returns the field names of all fixed free-text questions, so
// new text questions are covered by moderation without code changes.
func (c *Config) TextFieldNames() []string {
	var names []string
	for _, q := range c.Questions.Fixed {
		if q.Type == "text" {
			names = append(names, q.FieldName)
		}
	}
	return names
}

// LoadConfig reads configuration from the specified YAML file. Secrets can be
// supplied through the environment instead of the file: GEMINI_API_KEY and
// DATABASE_URL take precedence when set.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api key is not set (config gemini.api_key or GEMINI_API_KEY)")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is not set (config database.url or DATABASE_URL)")
	}
	if c.Operational.MinSubmissionsForAI < 1 {
		return fmt.Errorf("operational.min_submissions_for_ai must be at least 1")
	}
	if c.Operational.ThemeExtractionInterval < 1 || c.Operational.InsightInterval < 1 {
		return fmt.Errorf("generation intervals must be at least 1")
	}
	return nil
}
