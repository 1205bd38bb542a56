package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for showloop.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Player    PlayerConfig    `yaml:"player"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Renderer  RendererConfig  `yaml:"renderer"`
}

// PlayerConfig identifies this player instance.
// The ID scopes MQTT topics, metrics, and history rows.
type PlayerConfig struct {
	ID   string `yaml:"id" env:"SHOWLOOP_PLAYER_ID"`
	Name string `yaml:"name" env:"SHOWLOOP_PLAYER_NAME"`
}

// PlaybackConfig contains scene loop settings.
type PlaybackConfig struct {
	// CatalogFile is the YAML scene catalog.
	CatalogFile string `yaml:"catalog_file" env:"SHOWLOOP_CATALOG_FILE"`

	// QuantumMs is the clock tick interval.
	QuantumMs int `yaml:"quantum_ms" env:"SHOWLOOP_QUANTUM_MS"`

	// SettleDelayMs is the wait between a completion signal and the advance.
	// Zero advances immediately.
	SettleDelayMs int `yaml:"settle_delay_ms" env:"SHOWLOOP_SETTLE_DELAY_MS"`

	// JumpPolicy is "resume" (autoplay from the new scene) or "pause".
	JumpPolicy string `yaml:"jump_policy" env:"SHOWLOOP_JUMP_POLICY"`

	// EventBuffer is the per-subscriber event channel size.
	EventBuffer int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"SHOWLOOP_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled" env:"SHOWLOOP_MQTT_ENABLED"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"SHOWLOOP_MQTT_HOST"`
	Port     int    `yaml:"port" env:"SHOWLOOP_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"SHOWLOOP_MQTT_USERNAME"`
	Password string `yaml:"password" env:"SHOWLOOP_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"SHOWLOOP_API_HOST"`
	Port     int              `yaml:"port" env:"SHOWLOOP_API_PORT"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// PublicURL is how operators' phones reach this player. It is encoded
	// into the control-panel QR code. Empty derives it from host and port.
	PublicURL string `yaml:"public_url" env:"SHOWLOOP_PUBLIC_URL"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"SHOWLOOP_CORS_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SHOWLOOP_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"SHOWLOOP_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"SHOWLOOP_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SHOWLOOP_LOG_LEVEL"`
	Format string `yaml:"format" env:"SHOWLOOP_LOG_FORMAT"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret" env:"SHOWLOOP_JWT_SECRET"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	DisplayTokenTTL int    `yaml:"display_token_ttl"`
}

// RendererConfig controls the supervised kiosk display process.
type RendererConfig struct {
	Enabled bool `yaml:"enabled" env:"SHOWLOOP_RENDERER_ENABLED"`

	// Binary is the display executable, typically a browser in kiosk mode.
	Binary string `yaml:"binary" env:"SHOWLOOP_RENDERER_BINARY"`

	// Args may contain {{url}} and {{token}}, replaced with the panel URL
	// and a freshly minted display token.
	Args []string `yaml:"args"`

	// Env holds extra KEY=VALUE pairs for the process.
	Env []string `yaml:"env"`

	RestartDelay        time.Duration `yaml:"restart_delay"`
	MaxRestartDelay     time.Duration `yaml:"max_restart_delay"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	StableThreshold     time.Duration `yaml:"stable_threshold"`
	GracefulTimeout     time.Duration `yaml:"graceful_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHOWLOOP_SECTION_KEY
// For example: SHOWLOOP_DATABASE_PATH, SHOWLOOP_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			ID:   "lobby",
			Name: "Showloop",
		},
		Playback: PlaybackConfig{
			CatalogFile:   "./configs/scenes.yaml",
			QuantumMs:     100,
			SettleDelayMs: 1000,
			JumpPolicy:    "resume",
			EventBuffer:   256,
		},
		Database: DatabaseConfig{
			Path:        "./data/showloop.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "showloop",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "showloop",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  60,
				DisplayTokenTTL: 1440,
			},
		},
		Renderer: RendererConfig{
			Binary:              "chromium",
			Args:                []string{"--kiosk", "--noerrdialogs", "--disable-infobars", "{{url}}"},
			RestartDelay:        2 * time.Second,
			MaxRestartDelay:     60 * time.Second,
			StableThreshold:     2 * time.Minute,
			GracefulTimeout:     10 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
	}
}

// applyEnvOverrides applies SHOWLOOP_* environment variables on top of the
// loaded values. Unset variables leave the field untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Player.ID == "" {
		errs = append(errs, "player.id is required")
	} else if strings.ContainsAny(c.Player.ID, "/#+ ") {
		errs = append(errs, "player.id must not contain '/', '#', '+' or spaces")
	}

	if c.Playback.CatalogFile == "" {
		errs = append(errs, "playback.catalog_file is required")
	}
	if c.Playback.QuantumMs < 10 || c.Playback.QuantumMs > 1000 {
		errs = append(errs, "playback.quantum_ms must be between 10 and 1000")
	}
	if c.Playback.SettleDelayMs < 0 || c.Playback.SettleDelayMs > 10000 {
		errs = append(errs, "playback.settle_delay_ms must be between 0 and 10000")
	}
	switch strings.ToLower(c.Playback.JumpPolicy) {
	case "", "resume", "pause":
	default:
		errs = append(errs, "playback.jump_policy must be resume or pause")
	}
	if c.Playback.EventBuffer < 0 {
		errs = append(errs, "playback.event_buffer must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.PublicURL != "" {
		u, err := url.Parse(c.API.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "api.public_url must be an absolute http(s) URL")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Anyone holding a forged token can drive the public display.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SHOWLOOP_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Renderer.Enabled && c.Renderer.Binary == "" {
		errs = append(errs, "renderer.binary is required when renderer is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetQuantum returns the playback clock interval.
func (c *Config) GetQuantum() time.Duration {
	return time.Duration(c.Playback.QuantumMs) * time.Millisecond
}

// GetSettleDelay returns the completion settle delay.
func (c *Config) GetSettleDelay() time.Duration {
	return time.Duration(c.Playback.SettleDelayMs) * time.Millisecond
}

// GetAccessTokenTTL returns the operator token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// GetDisplayTokenTTL returns the display token lifetime.
func (c *Config) GetDisplayTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.DisplayTokenTTL) * time.Minute
}

// GetPublicURL returns the externally reachable base URL without a trailing slash.
func (c *Config) GetPublicURL() string {
	if c.API.PublicURL != "" {
		return strings.TrimRight(c.API.PublicURL, "/")
	}

	host := c.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	scheme := "http"
	if c.API.TLS.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.API.Port)
}
