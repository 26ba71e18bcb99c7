package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Stream   StreamConfig   `mapstructure:"stream"`
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// StreamConfig controls the live analytics connection and the rolling history.
type StreamConfig struct {
	URL              string        `mapstructure:"url"`         // explicit endpoint; empty derives it from page_origin
	PageOrigin       string        `mapstructure:"page_origin"` // e.g. "https://dash.example.com"
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	HistoryCapacity  int           `mapstructure:"history_capacity"`
	ZScoreThreshold  float64       `mapstructure:"zscore_threshold"` // |z| at which an update is worth flagging
	TimestampLayout  string        `mapstructure:"timestamp_layout"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// setDefaults also registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", "")
	v.SetDefault("stream.page_origin", "")
	v.SetDefault("stream.reconnect_delay", 5*time.Second)
	v.SetDefault("stream.handshake_timeout", 10*time.Second)
	v.SetDefault("stream.history_capacity", 10)
	v.SetDefault("stream.zscore_threshold", 2.0)
	v.SetDefault("stream.timestamp_layout", "15:04:05")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "spreadwatch")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.retention", 7*24*time.Hour)
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	cfg, err := LoadFrom(searchPaths()...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from the first of paths that has one. A missing
// file is not an error: defaults and environment variables still apply.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	// Support environment variables with dot notation (e.g., STREAM_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func searchPaths() []string {
	paths := []string{"./config"}

	ex, err := os.Executable()
	if err == nil && !strings.Contains(ex, "go-build") {
		paths = append(paths, filepath.Join(filepath.Dir(ex), "../config"))
	}
	if pwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(pwd, "../../config"))
	}
	return paths
}
