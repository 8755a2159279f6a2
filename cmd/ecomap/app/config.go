package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/ecomap/internal/transport"
	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Pipeline configuration
	Store       string
	DBPath      string
	Concurrency int
	Feeds       []string
	FeedAuth    string
	FeedAPIKey  string
	SignalsPath string
	RulesPath   string
	Timezone    string
	Schedules   map[scheduler.Class]string

	// Observability
	OTelEndpoint string
	MetricsAddr  string

	// HTTP API
	APIAddr      string
	APIKey       string
	CORSOrigins  []string
	RateLimit    int
	ProtectReads bool

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (ECOMAP_*)
// 3. .env files
// 4. Config file (~/.ecomap.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v.SetEnvPrefix("ECOMAP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("store", StoreMemory)
	v.SetDefault("db_path", "ecomap.db")
	v.SetDefault("concurrency", constants.DefaultConcurrency)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("api_addr", ":8080")
	v.SetDefault("rate_limit", 300)
	for _, c := range scheduler.Classes {
		v.SetDefault("schedules."+string(c), c.DefaultSchedule())
	}

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".ecomap")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return nil, errors.NewConfigError("config", "failed to read "+configFile, err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		Store:        strings.ToLower(v.GetString("store")),
		DBPath:       v.GetString("db_path"),
		Concurrency:  v.GetInt("concurrency"),
		Feeds:        v.GetStringSlice("feeds"),
		FeedAuth:     v.GetString("feed_auth"),
		FeedAPIKey:   v.GetString("feed_api_key"),
		SignalsPath:  v.GetString("signals"),
		RulesPath:    v.GetString("quality_rules"),
		Timezone:     v.GetString("timezone"),
		OTelEndpoint: v.GetString("otel_endpoint"),
		MetricsAddr:  v.GetString("metrics_addr"),
		APIAddr:      v.GetString("api_addr"),
		APIKey:       v.GetString("api_key"),
		CORSOrigins:  v.GetStringSlice("cors_origins"),
		RateLimit:    v.GetInt("rate_limit"),
		ProtectReads: v.GetBool("protect_reads"),
		Schedules:    make(map[scheduler.Class]string, len(scheduler.Classes)),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", ""),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}
	for _, c := range scheduler.Classes {
		config.Schedules[c] = v.GetString("schedules." + string(c))
	}

	return config, config.Validate()
}

// Validate checks the configuration for values no command can run with.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return errors.NewConfigError("store", "unknown store backend "+c.Store, nil)
	}
	if c.Store == StoreSQLite && c.DBPath == "" {
		return errors.NewConfigError("store", "db_path is required for the sqlite store", nil)
	}
	if c.Concurrency < 1 || c.Concurrency > constants.MaxConcurrency {
		return errors.NewConfigError("concurrency", "out of range", nil)
	}
	if _, err := transport.ParseAuth(c.FeedAuth); err != nil {
		return errors.NewConfigError("feed_auth", "unknown feed auth scheme "+c.FeedAuth, err)
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("rate_limit", "must not be negative", nil)
	}
	if _, err := c.Location(); err != nil {
		return errors.NewConfigError("timezone", "unknown timezone "+c.Timezone, err)
	}
	return nil
}

// Location returns the timezone cron cadences are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
