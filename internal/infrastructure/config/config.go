package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the drone gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logging    LoggingConfig    `yaml:"logging"`
	Workers    WorkerConfig     `yaml:"workers"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Devices    DevicesConfig    `yaml:"devices"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
//
// The write timeout must cover the slowest device operation plus queueing,
// otherwise clients are cut off before their response is produced.
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
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WorkerConfig sizes the pool that runs blocking device operations.
type WorkerConfig struct {
	Size int `yaml:"size"`
}

// DispatcherConfig contains event loop settings.
type DispatcherConfig struct {
	// InboxSize is the buffer of requests waiting for the loop.
	InboxSize int `yaml:"inbox_size"`
}

// DevicesConfig describes the fixed device fleet.
type DevicesConfig struct {
	Motor     MotorConfig     `yaml:"motor"`
	Lights    []LightConfig   `yaml:"lights"`
	Altimeter AltimeterConfig `yaml:"altimeter"`
}

// LatencyConfig holds the minimum duration of each device operation.
type LatencyConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
}

// MotorConfig describes the motor controller.
type MotorConfig struct {
	ID      int           `yaml:"id"`
	Latency LatencyConfig `yaml:"latency"`
}

// LightConfig describes one indicator light.
type LightConfig struct {
	ID          int           `yaml:"id"`
	Description string        `yaml:"description"`
	Latency     LatencyConfig `yaml:"latency"`
}

// AltimeterConfig describes the altimeter sensor.
type AltimeterConfig struct {
	ID          int           `yaml:"id"`
	MinAltitude int           `yaml:"min_altitude"`
	MaxAltitude int           `yaml:"max_altitude"`
	Latency     time.Duration `yaml:"latency"`
}

// DatabaseConfig contains SQLite settings for the operation history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds the operation history. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DRONEGW_SECTION_KEY
// For example: DRONEGW_API_PORT, DRONEGW_WORKERS_SIZE
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the stock drone fleet and the hardware
// timings of the real actuators.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8888,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Workers: WorkerConfig{
			Size: 4,
		},
		Dispatcher: DispatcherConfig{
			InboxSize: 64,
		},
		Devices: DevicesConfig{
			Motor: MotorConfig{
				ID:      1,
				Latency: LatencyConfig{Read: 3 * time.Second, Write: 2 * time.Second},
			},
			Lights: []LightConfig{
				{ID: 1, Description: "Blue LED", Latency: LatencyConfig{Read: time.Second, Write: 2 * time.Second}},
				{ID: 2, Description: "White LED", Latency: LatencyConfig{Read: time.Second, Write: 2 * time.Second}},
			},
			Altimeter: AltimeterConfig{
				ID:          1,
				MinAltitude: 0,
				MaxAltitude: 3000,
				Latency:     time.Second,
			},
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/dronegateway.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dronegateway",
			},
			QoS:         1,
			TopicPrefix: "drone",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// envBinding ties one environment variable to a config field.
type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

func envString(name string, field func(*Config) *string) envBinding {
	return envBinding{name, func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func envInt(name string, field func(*Config) *int) envBinding {
	return envBinding{name, func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}}
}

func envBool(name string, field func(*Config) *bool) envBinding {
	return envBinding{name, func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

// envBindings lists every supported override. Secrets belong here rather
// than in the YAML file.
var envBindings = []envBinding{
	envString("DRONEGW_API_HOST", func(c *Config) *string { return &c.API.Host }),
	envInt("DRONEGW_API_PORT", func(c *Config) *int { return &c.API.Port }),
	envInt("DRONEGW_WORKERS_SIZE", func(c *Config) *int { return &c.Workers.Size }),
	envInt("DRONEGW_DISPATCHER_INBOX_SIZE", func(c *Config) *int { return &c.Dispatcher.InboxSize }),
	envString("DRONEGW_LOGGING_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	envString("DRONEGW_LOGGING_FORMAT", func(c *Config) *string { return &c.Logging.Format }),
	envBool("DRONEGW_DATABASE_ENABLED", func(c *Config) *bool { return &c.Database.Enabled }),
	envString("DRONEGW_DATABASE_PATH", func(c *Config) *string { return &c.Database.Path }),
	envInt("DRONEGW_DATABASE_RETENTION_DAYS", func(c *Config) *int { return &c.Database.RetentionDays }),
	envBool("DRONEGW_MQTT_ENABLED", func(c *Config) *bool { return &c.MQTT.Enabled }),
	envString("DRONEGW_MQTT_HOST", func(c *Config) *string { return &c.MQTT.Broker.Host }),
	envInt("DRONEGW_MQTT_PORT", func(c *Config) *int { return &c.MQTT.Broker.Port }),
	envString("DRONEGW_MQTT_USERNAME", func(c *Config) *string { return &c.MQTT.Auth.Username }),
	envString("DRONEGW_MQTT_PASSWORD", func(c *Config) *string { return &c.MQTT.Auth.Password }),
	envBool("DRONEGW_INFLUXDB_ENABLED", func(c *Config) *bool { return &c.InfluxDB.Enabled }),
	envString("DRONEGW_INFLUXDB_URL", func(c *Config) *string { return &c.InfluxDB.URL }),
	envString("DRONEGW_INFLUXDB_TOKEN", func(c *Config) *string { return &c.InfluxDB.Token }),
}

// applyEnvOverrides applies the environment variables that are set, in
// envBindings order.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

// maxWorkers caps the pool; the gateway drives a handful of actuators.
const maxWorkers = 64

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Workers.Size < 1 || c.Workers.Size > maxWorkers {
		errs = append(errs, fmt.Sprintf("workers.size must be between 1 and %d", maxWorkers))
	}

	if c.Dispatcher.InboxSize < 0 {
		errs = append(errs, "dispatcher.inbox_size must not be negative")
	}

	errs = append(errs, c.WebSocket.validate()...)

	errs = append(errs, c.Devices.validate()...)

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DevicesConfig) validate() []string {
	var errs []string

	if d.Motor.ID < 1 {
		errs = append(errs, "devices.motor.id must be positive")
	}
	errs = append(errs, d.Motor.Latency.validate("devices.motor")...)

	seen := make(map[int]bool, len(d.Lights))
	for i, l := range d.Lights {
		prefix := fmt.Sprintf("devices.lights[%d]", i)
		if l.ID < 1 {
			errs = append(errs, prefix+".id must be positive")
		}
		if seen[l.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %d is duplicated", prefix, l.ID))
		}
		seen[l.ID] = true
		errs = append(errs, l.Latency.validate(prefix)...)
	}

	if d.Altimeter.ID < 1 {
		errs = append(errs, "devices.altimeter.id must be positive")
	}
	if d.Altimeter.MinAltitude > d.Altimeter.MaxAltitude {
		errs = append(errs, "devices.altimeter.min_altitude must not exceed max_altitude")
	}
	if d.Altimeter.Latency <= 0 {
		errs = append(errs, "devices.altimeter.latency must be positive")
	}

	return errs
}

// validate rejects zero latencies as well as negative ones: every configured
// device holds its lock for a real settling time.
func (l LatencyConfig) validate(prefix string) []string {
	var errs []string
	if l.Read <= 0 {
		errs = append(errs, prefix+".latency.read must be positive")
	}
	if l.Write <= 0 {
		errs = append(errs, prefix+".latency.write must be positive")
	}
	return errs
}

func (w WebSocketConfig) validate() []string {
	var errs []string
	if w.PingInterval < 1 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if w.PongTimeout < 1 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}
	if w.MaxMessageSize < 1 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}
	return errs
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
