package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mbecker/reel/internal/download"
)

// Config holds all application configuration
type Config struct {
	User     UserConfig     `mapstructure:"user"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Player   PlayerConfig   `mapstructure:"player"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// UserConfig identifies the viewing user for viewed-history tracking.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// CacheConfig holds media cache configuration
type CacheConfig struct {
	Dir           string        `mapstructure:"dir"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	StaleDuration time.Duration `mapstructure:"stale_duration"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryStrategy string        `mapstructure:"retry_strategy"` // "exponential" or "linear"
	RetryBase     time.Duration `mapstructure:"retry_base"`
	StalePolicy   string        `mapstructure:"stale_policy"` // "serve-stale" or "block"
}

// PlaybackConfig holds playback engine tuning
type PlaybackConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PrefetchAhead int           `mapstructure:"prefetch_ahead"`
	PrefetchLimit int           `mapstructure:"prefetch_limit"`
	FeedExpiry    time.Duration `mapstructure:"feed_expiry"`
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{
			ID: "default",
		},
		Cache: CacheConfig{
			Dir:           defaultCachePath(),
			MaxAge:        1 * time.Hour,
			StaleDuration: 24 * time.Hour,
			MaxRetries:    3,
			RetryStrategy: "exponential",
			RetryBase:     500 * time.Millisecond,
			StalePolicy:   "serve-stale",
		},
		Playback: PlaybackConfig{
			TickInterval:  16 * time.Millisecond,
			MaxRetries:    3,
			PrefetchAhead: 2,
			PrefetchLimit: 2,
			FeedExpiry:    24 * time.Hour,
		},
		Player: PlayerConfig{
			Command: "mpv",
			Args:    []string{},
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reel", "reel.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "reel", "reel.log")
	}
}

// defaultCachePath returns the default media cache dir for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reel", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".cache", "reel")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reel")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "reel")
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("REEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the current configuration to file
func Save(cfg *Config) error {
	configPath := defaultConfigPath()

	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("user.id", cfg.User.ID)

	viper.Set("cache.dir", cfg.Cache.Dir)
	viper.Set("cache.max_age", cfg.Cache.MaxAge)
	viper.Set("cache.stale_duration", cfg.Cache.StaleDuration)
	viper.Set("cache.max_retries", cfg.Cache.MaxRetries)
	viper.Set("cache.retry_strategy", cfg.Cache.RetryStrategy)
	viper.Set("cache.retry_base", cfg.Cache.RetryBase)
	viper.Set("cache.stale_policy", cfg.Cache.StalePolicy)

	viper.Set("playback.tick_interval", cfg.Playback.TickInterval)
	viper.Set("playback.max_retries", cfg.Playback.MaxRetries)
	viper.Set("playback.prefetch_ahead", cfg.Playback.PrefetchAhead)
	viper.Set("playback.prefetch_limit", cfg.Playback.PrefetchLimit)
	viper.Set("playback.feed_expiry", cfg.Playback.FeedExpiry)

	viper.Set("player.command", cfg.Player.Command)
	viper.Set("player.args", cfg.Player.Args)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DownloadConfig converts the cache section into the download manager's
// config struct.
func (c *Config) DownloadConfig() download.CacheConfig {
	retry := download.Exponential(c.Cache.RetryBase)
	if strings.EqualFold(c.Cache.RetryStrategy, "linear") {
		retry = download.Linear(c.Cache.RetryBase)
	}
	return download.CacheConfig{
		Dir:           c.Cache.Dir,
		MaxAge:        c.Cache.MaxAge,
		StaleDuration: c.Cache.StaleDuration,
		MaxRetries:    c.Cache.MaxRetries,
		Retry:         retry,
	}
}

// StalePolicy maps the configured policy name onto the download manager's
// knob. Unknown names fall back to serving stale entries.
func (c *Config) StalePolicy() download.StalePolicy {
	if strings.EqualFold(c.Cache.StalePolicy, "block") {
		return download.BlockOnRefresh
	}
	return download.ServeStaleRevalidate
}
