// Package config loads prana-tool settings and owns the shared logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Retry    RetryConfig    `yaml:"retry"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig describes the single unit a session talks to.
type DeviceConfig struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`

	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// RetryConfig bounds transient transport failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// MQTTConfig contains the Home Assistant bridge settings.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// HTTPConfig contains the REST API settings.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// InfluxDBConfig contains telemetry settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with all defaults filled in.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			IdleTimeout:  120 * time.Second,
			StaleAfter:   5 * time.Minute,
			PollInterval: 30 * time.Second,
			ScanTimeout:  20 * time.Second,
			ReplyTimeout: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     250 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost:1883",
			ClientID:        "prana-tool",
			TopicPrefix:     "prana",
			DiscoveryPrefix: "homeassistant",
		},
		HTTP: HTTPConfig{
			Listen: ":8080",
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Bucket: "prana",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies PRANA_* environment variables. Secrets should
// come from here rather than the file.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PRANA_ADDRESS"); v != "" {
		cfg.Device.Address = v
	}
	if v := os.Getenv("PRANA_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PRANA_IDLE_TIMEOUT: %w", err)
		}
		cfg.Device.IdleTimeout = d
	}
	if v := os.Getenv("PRANA_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRANA_RETRY_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}

	if v := os.Getenv("PRANA_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("PRANA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("PRANA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	if v := os.Getenv("PRANA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("PRANA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for errors. The device address is not
// required here since the CLI may supply it.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.IdleTimeout <= 0 {
		errs = append(errs, "device.idle_timeout must be positive")
	}
	if c.Device.StaleAfter <= 0 {
		errs = append(errs, "device.stale_after must be positive")
	}
	if c.Device.PollInterval < 0 {
		errs = append(errs, "device.poll_interval must not be negative")
	}
	if c.Device.ReplyTimeout <= 0 {
		errs = append(errs, "device.reply_timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, "retry.backoff must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, "mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errs = append(errs, "http.listen is required when http is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ErrNoAddress is returned when no device address was configured anywhere.
var ErrNoAddress = errors.New("no device address configured (set device.address, PRANA_ADDRESS or --address)")

// RequireAddress returns ErrNoAddress when the device address is empty.
func (c *Config) RequireAddress() error {
	if strings.TrimSpace(c.Device.Address) == "" {
		return ErrNoAddress
	}
	return nil
}
