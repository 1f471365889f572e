package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for meshgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Cache     CacheConfig     `yaml:"cache"`
	Workers   WorkersConfig   `yaml:"workers"`
	Events    EventsConfig    `yaml:"events"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains deployment-specific identification.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig describes the companion-device connection profile.
//
// Driver selects the registered protocol connector ("sim" ships with the
// binary; hardware drivers register themselves the way database/sql drivers
// do). Transport selects the physical link the connector should open.
type DeviceConfig struct {
	Driver    string       `yaml:"driver"`
	Transport string       `yaml:"transport"` // ble | serial | tcp
	BLE       BLEConfig    `yaml:"ble"`
	Serial    SerialConfig `yaml:"serial"`
	TCP       TCPConfig    `yaml:"tcp"`
	Debug     bool         `yaml:"debug"`
}

// BLEConfig contains BLE link settings.
type BLEConfig struct {
	Address string `yaml:"address"`
	PIN     string `yaml:"pin"`
}

// SerialConfig contains serial link settings.
type SerialConfig struct {
	Port     string `yaml:"port"`
	Baudrate int    `yaml:"baudrate"`
}

// TCPConfig contains TCP link settings.
type TCPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	AuthTimeout    int    `yaml:"auth_timeout"` // seconds to wait for the auth frame
	IdleWait       int    `yaml:"idle_wait"`    // seconds between delivery checks
}

// CacheConfig contains channel-slot cache settings.
type CacheConfig struct {
	TTL int `yaml:"ttl"` // seconds; default is 12 hours
}

// TTLDuration returns the cache TTL as a time.Duration.
func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// WorkersConfig contains background worker settings (seconds).
type WorkersConfig struct {
	MessagePollInterval  int `yaml:"message_poll_interval"`
	RepeaterPollInterval int `yaml:"repeater_poll_interval"`
	BackoffBase          int `yaml:"backoff_base"`
	BackoffMax           int `yaml:"backoff_max"`
}

// EventsConfig contains event bus settings.
type EventsConfig struct {
	QueueSize        int `yaml:"queue_size"`
	BatchSize        int `yaml:"batch_size"`
	FirstItemWait    int `yaml:"first_item_wait"`   // seconds
	DebounceInterval int `yaml:"debounce_interval"` // seconds
}

// MQTTConfig contains the optional MQTT message relay settings.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      MQTTBroker    `yaml:"broker"`
	Auth        MQTTAuth      `yaml:"auth"`
	QoS         int           `yaml:"qos"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Reconnect   MQTTReconnect `yaml:"reconnect"`
}

// MQTTBroker contains MQTT broker connection details.
type MQTTBroker struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuth contains MQTT authentication credentials.
type MQTTAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnect contains MQTT reconnection settings (seconds).
type MQTTReconnect struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains the optional telemetry mirror settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT   JWTConfig    `yaml:"jwt"`
	Users []UserConfig `yaml:"users"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// UserConfig declares an API user. PasswordHash is an Argon2id PHC string.
type UserConfig struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
	Output string `yaml:"output"` // stdout | stderr
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MESHGATE_SECTION_KEY
// For example: MESHGATE_DATABASE_PATH, MESHGATE_DEVICE_TCP_HOST
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "meshgate-001",
			Name: "meshgate",
		},
		Device: DeviceConfig{
			Driver:    "sim",
			Transport: "tcp",
			Serial: SerialConfig{
				Port:     "/dev/ttyUSB0",
				Baudrate: 115200,
			},
			TCP: TCPConfig{
				Host: "192.168.1.100",
				Port: 4000,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/meshgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			AuthTimeout:    10,
			IdleWait:       30,
		},
		Cache: CacheConfig{
			TTL: 12 * 60 * 60,
		},
		Workers: WorkersConfig{
			MessagePollInterval:  2,
			RepeaterPollInterval: 900,
			BackoffBase:          2,
			BackoffMax:           60,
		},
		Events: EventsConfig{
			QueueSize:        1000,
			BatchSize:        100,
			FirstItemWait:    5,
			DebounceInterval: 1,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBroker{
				Host:     "localhost",
				Port:     1883,
				ClientID: "meshgate",
			},
			QoS:         1,
			TopicPrefix: "meshgate",
			Reconnect: MQTTReconnect{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("MESHGATE_DEVICE_DRIVER"); v != "" {
		cfg.Device.Driver = v
	}
	if v := os.Getenv("MESHGATE_DEVICE_TRANSPORT"); v != "" {
		cfg.Device.Transport = v
	}
	if v := os.Getenv("MESHGATE_DEVICE_TCP_HOST"); v != "" {
		cfg.Device.TCP.Host = v
	}
	if v := os.Getenv("MESHGATE_DEVICE_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Device.TCP.Port = port
		}
	}
	if v := os.Getenv("MESHGATE_DEVICE_BLE_ADDRESS"); v != "" {
		cfg.Device.BLE.Address = v
	}
	if v := os.Getenv("MESHGATE_DEVICE_SERIAL_PORT"); v != "" {
		cfg.Device.Serial.Port = v
	}

	// Database
	if v := os.Getenv("MESHGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("MESHGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MESHGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("MESHGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MESHGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MESHGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MESHGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("MESHGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Device.Driver == "" {
		errs = append(errs, "device.driver is required")
	}
	switch strings.ToLower(c.Device.Transport) {
	case "ble", "serial", "tcp":
	default:
		errs = append(errs, fmt.Sprintf("device.transport %q is not one of ble, serial, tcp", c.Device.Transport))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	if c.API.TLS.Enabled {
		if c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "" {
			errs = append(errs, "api.tls requires cert_file and key_file when enabled")
		}
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Workers.MessagePollInterval <= 0 {
		errs = append(errs, "workers.message_poll_interval must be positive")
	}
	if c.Workers.RepeaterPollInterval <= 0 {
		errs = append(errs, "workers.repeater_poll_interval must be positive")
	}
	if c.Workers.BackoffBase <= 0 || c.Workers.BackoffMax < c.Workers.BackoffBase {
		errs = append(errs, "workers backoff_base must be positive and backoff_max >= backoff_base")
	}

	if c.Events.QueueSize <= 0 {
		errs = append(errs, "events.queue_size must be positive")
	}
	if c.Events.BatchSize <= 0 {
		errs = append(errs, "events.batch_size must be positive")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set MESHGATE_JWT_SECRET)")
	}
	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	for i, u := range c.Security.Users {
		if u.Email == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d] requires email and password_hash", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
