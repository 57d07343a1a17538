package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SCANWATCH"

// Config is the full client configuration
type Config struct {
	API    APIConfig  `mapstructure:"api"`
	Poll   PollConfig `mapstructure:"poll"`
	Log    LogConfig  `mapstructure:"log"`
	Output string     `mapstructure:"output"`
}

// APIConfig points the client at the scan API
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig holds view refresh cadences
type PollConfig struct {
	ListInterval   time.Duration `mapstructure:"list_interval"`   // overview and history
	DetailInterval time.Duration `mapstructure:"detail_interval"` // single scan, while not terminal
	ListLimit      int           `mapstructure:"list_limit"`
}

// LogConfig controls the logrus logger and its lumberjack rotation
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug/info/warn/error
	Format     string `mapstructure:"format"`      // json/text
	Output     string `mapstructure:"output"`      // stdout/stderr/file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout", "15s")

	v.SetDefault("poll.list_interval", "5s")
	v.SetDefault("poll.detail_interval", "3s")
	v.SetDefault("poll.list_limit", 100)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "./logs/scanwatch.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.caller", false)

	v.SetDefault("output", "./reports")
}

// BindEnv wires SCANWATCH_* environment variables onto v, e.g. SCANWATCH_API_BASE_URL
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadFile loads an optional YAML config file. An explicit path that is missing is an error;
// a missing file in the default search path is not.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		v.SetConfigName("scanwatch")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and bounds
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Poll.ListInterval <= 0 || c.Poll.DetailInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Poll.ListLimit < 1 || c.Poll.ListLimit > 100 {
		return fmt.Errorf("poll.list_limit must be between 1 and 100, got %d", c.Poll.ListLimit)
	}
	return nil
}
