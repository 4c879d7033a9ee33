// Package config loads and validates fetcher and viewer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers understood by the storage factory.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Backend names shared by the archive and events sections.
const (
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
)

// DefaultChannelIDs is the channel list polled when none is configured.
var DefaultChannelIDs = []string{
	"UCYzEMRKqrh01-tauv7MYyVQ",
	"UCsXVk37bltHxD1rDPwtNM8Q",
	"UCAuUUnT6oDeKwE6v1NGQxug",
	"UCHnyfMqiRRG1u-2MsSQLbXA",
	"UCX6b17PVsYBQ0ip5gyeme-Q",
	"UC8butISFwT-Wl7EV0hUK0BQ",
	"UCJr72fY4cTaNZv7WPbvjaSw",
	"UC_x5XG1OV2P6uZZ5FSM9Ttw",
	"UC295-Dw_tDNtZXFeAPAW6Aw",
	"UC29ju8bIPH5as8OGnQzwJyA",
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	DB        DBConfig        `mapstructure:"db"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// YouTubeConfig controls the Data API client.
type YouTubeConfig struct {
	APIKey            string   `mapstructure:"api_key"`
	ChannelIDs        []string `mapstructure:"channel_ids"`
	Endpoint          string   `mapstructure:"endpoint"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	MaxRetries        int      `mapstructure:"max_retries"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines viewer authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the optional log directory.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Dir         string `mapstructure:"dir"`
}

// ArchiveConfig selects where channel snapshots are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// EventsConfig holds metadata for sync notifications.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls metric export for the batch fetcher.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from a .env file, disk, and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("YTETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key; AutomaticEnv only overrides keys viper already knows.
func setDefaults(v *viper.Viper) {
	v.SetDefault("youtube.channel_ids", DefaultChannelIDs)
	v.SetDefault("youtube.requests_per_second", 5.0)
	v.SetDefault("youtube.max_retries", 2)
	v.SetDefault("youtube.timeout_seconds", 15)
	v.SetDefault("youtube.endpoint", "")
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "youtube.db")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.port", 8501)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.dir", "")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.dir", "data/archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("events.backend", BackendNone)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "channel-synced")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("telemetry.service_name", "youtube-etl")
	v.SetDefault("telemetry.project_id", "")
}

// bindLegacyEnv keeps the unprefixed variable names used by existing .env files working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"youtube.api_key": "YOUTUBE_API_KEY",
		"db.host":         "DB_HOST",
		"db.port":         "DB_PORT",
		"db.name":         "DB_NAME",
		"db.user":         "DB_USER",
		"db.password":     "DB_PASSWORD",
	}
	for key, legacy := range bindings {
		prefixed := "YTETL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values shared by both binaries.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" && (c.DB.Host == "" || c.DB.Name == "") {
			return fmt.Errorf("db.dsn or db.host and db.name must be set for postgres")
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path must be set for sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Backend {
	case "", BackendNone:
	case BackendLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local archive")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Events.Backend {
	case "", BackendNone:
	case BackendPubSub:
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("events.backend %q is not supported", c.Events.Backend)
	}
	return nil
}

// ValidateFetcher adds the checks only the fetcher needs.
func (c Config) ValidateFetcher() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube.api_key must be set")
	}
	if len(c.YouTube.ChannelIDs) == 0 {
		return fmt.Errorf("youtube.channel_ids must not be empty")
	}
	if c.YouTube.TimeoutSeconds <= 0 {
		return fmt.Errorf("youtube.timeout_seconds must be > 0")
	}
	if c.YouTube.MaxRetries < 0 {
		return fmt.Errorf("youtube.max_retries must be >= 0")
	}
	return nil
}

// PostgresDSN returns db.dsn, or a URL assembled from the individual db fields.
func (c DBConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted returns the DSN with any password masked, for logging.
func (c DBConfig) Redacted() string {
	u, err := url.Parse(c.PostgresDSN())
	if err != nil {
		return "postgres://[masked]"
	}
	return u.Redacted()
}

// APITimeout converts youtube.timeout_seconds into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.YouTube.TimeoutSeconds) * time.Second
}
