package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// SelectorSet holds the CSS selectors a webpage source uses to extract
// one record per matched item element.
type SelectorSet struct {
	Item        string `mapstructure:"item" validate:"required"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Link        string `mapstructure:"link"`
	Date        string `mapstructure:"date"`
}

// SourceConfig is the declarative definition of one external source.
type SourceConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=api rss webpage"`
	URL  string `mapstructure:"url" validate:"required,url"`

	// API sources
	Headers        map[string]string `mapstructure:"headers"`
	Params         map[string]string `mapstructure:"params"`
	APIKey         string            `mapstructure:"api_key"`
	APIKeyIn       string            `mapstructure:"api_key_in" validate:"omitempty,oneof=header param"`
	APIKeyName     string            `mapstructure:"api_key_name"`
	ResponseFormat string            `mapstructure:"response_format" validate:"omitempty,oneof=json xml"`
	DataPath       string            `mapstructure:"data_path"`
	ItemsPath      string            `mapstructure:"items_path"`
	Namespace      string            `mapstructure:"namespace"`
	TitleField     string            `mapstructure:"title_field"`
	DescField      string            `mapstructure:"description_field"`
	DateField      string            `mapstructure:"date_field"`
	LinkField      string            `mapstructure:"link_field"`

	// RSS and webpage sources
	FilterKeywords []string     `mapstructure:"filter_keywords"`
	Selectors      *SelectorSet `mapstructure:"selectors"`

	// Outbound request throttle, requests per second. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
}

// DataPaths holds data directory and file path configuration.
type DataPaths struct {
	// DataDir is the base data directory (THREATHARVEST_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the threat store database path (THREATHARVEST_SQLITE_PATH, default: ${DataDir}/threatharvest.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// KnowledgeBasePath is the knowledge-base JSON file path (default: ${DataDir}/knowledge_base.json)
	KnowledgeBasePath string `mapstructure:"knowledge_base_path"`
}

// Config holds all configuration for the threatharvest service.
type Config struct {
	DataPaths DataPaths `mapstructure:"data_paths"`

	Sources map[string]SourceConfig `mapstructure:"sources"`

	Classifier struct {
		// Optional YAML keyword dictionaries. When absent, the built-in
		// dictionaries are used.
		CategoryKeywordsFile string `mapstructure:"category_keywords_file"`
		VectorKeywordsFile   string `mapstructure:"vector_keywords_file"`
	} `mapstructure:"classifier"`

	Fetch struct {
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
		RetryDelay time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"fetch"`

	Schedule struct {
		Enabled   bool   `mapstructure:"enabled"`
		Frequency string `mapstructure:"frequency" validate:"omitempty,oneof=hourly daily"`
		Time      string `mapstructure:"time"` // HH:MM, daily frequency only
	} `mapstructure:"schedule"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// setDefaults configures default values for all settings
func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "")         // Empty = derive from data_dir
	viper.SetDefault("data_paths.knowledge_base_path", "") // Empty = derive from data_dir

	viper.SetDefault("fetch.timeout", "10s")
	viper.SetDefault("fetch.max_retries", 3)
	viper.SetDefault("fetch.retry_delay", "2s")

	viper.SetDefault("schedule.enabled", false)
	viper.SetDefault("schedule.frequency", "daily")
	viper.SetDefault("schedule.time", "03:00")

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8085)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("THREATHARVEST")
	viper.AutomaticEnv()

	_ = viper.BindEnv("data_paths.data_dir", "THREATHARVEST_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "THREATHARVEST_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.knowledge_base_path", "THREATHARVEST_KB_PATH")
	_ = viper.BindEnv("api.port", "THREATHARVEST_API_PORT")
	_ = viper.BindEnv("log.level", "THREATHARVEST_LOG_LEVEL")
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error; defaults and env vars apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if len(config.Sources) == 0 {
		config.Sources = DefaultSources()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.ResolveDataPaths()

	return &config, nil
}

// Validate checks the configuration for structural errors. Invalid
// source definitions are configuration errors and prevent startup.
func (c *Config) Validate() error {
	validate := validator.New()

	for name, src := range c.Sources {
		if err := validate.Struct(src); err != nil {
			return fmt.Errorf("invalid source %q: %w", name, err)
		}
		if src.Type == "webpage" && src.Selectors == nil {
			return fmt.Errorf("invalid source %q: webpage sources require selectors", name)
		}
		if src.Selectors != nil {
			if err := validate.Struct(src.Selectors); err != nil {
				return fmt.Errorf("invalid source %q selectors: %w", name, err)
			}
		}
	}

	if c.Schedule.Frequency != "" && c.Schedule.Frequency != "hourly" && c.Schedule.Frequency != "daily" {
		return fmt.Errorf("invalid schedule frequency: %s", c.Schedule.Frequency)
	}
	if c.Schedule.Frequency == "daily" && c.Schedule.Time != "" {
		if _, err := time.Parse("15:04", c.Schedule.Time); err != nil {
			return fmt.Errorf("invalid schedule time %q: %w", c.Schedule.Time, err)
		}
	}

	return nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir when not
// explicitly set.
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "threatharvest.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.KnowledgeBasePath == "" {
		c.DataPaths.KnowledgeBasePath = filepath.Join(dataDir, "knowledge_base.json")
	} else if !filepath.IsAbs(c.DataPaths.KnowledgeBasePath) {
		c.DataPaths.KnowledgeBasePath = filepath.Clean(c.DataPaths.KnowledgeBasePath)
	}

	c.DataPaths.DataDir = dataDir
}

// DefaultSources returns the built-in source catalog used when no sources
// are configured: the NVD CVE 2.0 API and a security news feed.
func DefaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		"nvd_cve": {
			Type:           "api",
			URL:            "https://services.nvd.nist.gov/rest/json/cves/2.0",
			Params:         map[string]string{"resultsPerPage": "20"},
			ResponseFormat: "json",
			DataPath:       "vulnerabilities",
			TitleField:     "cve.id",
			DescField:      "cve.descriptions[0].value",
			DateField:      "cve.published",
			LinkField:      "cve.references[0].url",
		},
		"security_news": {
			Type: "rss",
			URL:  "https://threatpost.ru/feed/",
			FilterKeywords: []string{
				"vulnerability", "threat", "attack", "malware",
				"уязвимость", "атака", "угроза",
			},
		},
	}
}
