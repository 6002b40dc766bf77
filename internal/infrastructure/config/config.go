package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "GLOWLOGGER_"

// Config is the root configuration structure for the meter logger.
// Values come from defaults, an optional YAML file, environment variables
// and finally command-line flags (applied by the caller via Overrides).
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// PoolSize caps the number of pooled connections shared by the
	// ingest session and the maintenance task.
	PoolSize int `yaml:"pool_size"`

	// AcquireTimeout is how long (seconds) a caller waits for a pooled
	// connection before giving up.
	AcquireTimeout int `yaml:"acquire_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Topic     string              `yaml:"topic"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PollInterval is the idle delay (seconds) between connection attempts
	// while the session is disconnected.
	PollInterval int `yaml:"poll_interval"`

	// BufferSize is the capacity of the in-process message queue between
	// the MQTT client and the ingest session.
	BufferSize int `yaml:"buffer_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// URL is the broker address, e.g. tcp://glow.local:1883 or ssl://host:8883.
	URL string `yaml:"url"`

	// ClientIDPrefix is joined with a random UUID to form the client identifier.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	// ConnectTimeout is the connect handshake timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
//
// The transport's reconnect backoff always starts at 1 second, so
// InitialDelay only documents that floor and must be 1.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// reconnectInitialDelay is the fixed first reconnect delay of the MQTT client.
const reconnectInitialDelay = 1

// MaintenanceConfig controls the periodic WAL checkpoint.
type MaintenanceConfig struct {
	CheckpointInterval int    `yaml:"checkpoint_interval"`
	CheckpointMode     string `yaml:"checkpoint_mode"`
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

// APIConfig contains the operational HTTP endpoint settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Overrides holds values supplied on the command line.
// Empty fields leave the loaded configuration untouched.
type Overrides struct {
	DatabasePath string
	Broker       string
	Topic        string
	Username     string
	Password     string
}

// Load reads configuration and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty and the file exists
//  3. Environment variables, including any found in a .env file
//  4. Command-line overrides
//
// Environment variables follow the pattern: GLOWLOGGER_SECTION_KEY
// For example: GLOWLOGGER_DATABASE_PATH, GLOWLOGGER_MQTT_TOPIC
//
// Validation is left to the caller so that flag overrides can be applied
// before required fields are checked.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// A missing file is fine; flags and environment may supply everything.
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadDotEnv loads the first existing .env file from paths into the process
// environment. Variables already set in the environment are not overwritten.
//
// Returns the path that was loaded, or "" if none was found.
func LoadDotEnv(paths ...string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("loading %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./data/glowmarkt.db",
			WALMode:        true,
			BusyTimeout:    5,
			PoolSize:       4,
			AcquireTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				ClientIDPrefix: "glowmarkt_logger",
				ConnectTimeout: 5,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: reconnectInitialDelay,
				MaxDelay:     30,
			},
			PollInterval: 10,
			BufferSize:   64,
		},
		Maintenance: MaintenanceConfig{
			CheckpointInterval: 60,
			CheckpointMode:     "TRUNCATE",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9273,
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
	// Database
	if v := os.Getenv(EnvPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.URL = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv(EnvPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv(EnvPrefix + "API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Apply copies non-empty command-line overrides onto the configuration.
func (c *Config) Apply(o Overrides) {
	if o.DatabasePath != "" {
		c.Database.Path = o.DatabasePath
	}
	if o.Broker != "" {
		c.MQTT.Broker.URL = o.Broker
	}
	if o.Topic != "" {
		c.MQTT.Topic = o.Topic
	}
	if o.Username != "" {
		c.MQTT.Auth.Username = o.Username
	}
	if o.Password != "" {
		c.MQTT.Auth.Password = o.Password
	}
}

// Validate checks the configuration for errors.
//
// Broker credentials are deliberately not required here: an incomplete
// set keeps the ingest session idle rather than aborting the process.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, "database.pool_size must be at least 1")
	}
	if c.Database.AcquireTimeout < 1 {
		errs = append(errs, "database.acquire_timeout must be at least 1 second")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay != reconnectInitialDelay {
		errs = append(errs, "mqtt.reconnect.initial_delay must be 1: the MQTT client always starts reconnect backoff at 1 second")
	}
	if c.MQTT.Reconnect.MaxDelay < reconnectInitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if c.MQTT.PollInterval < 1 {
		errs = append(errs, "mqtt.poll_interval must be at least 1 second")
	}
	if strings.ContainsAny(c.MQTT.Topic, "+#") {
		errs = append(errs, "mqtt.topic must be a single topic without wildcards")
	}

	if c.Maintenance.CheckpointInterval < 1 {
		errs = append(errs, "maintenance.checkpoint_interval must be at least 1 second")
	}
	switch strings.ToUpper(c.Maintenance.CheckpointMode) {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		errs = append(errs, "maintenance.checkpoint_mode must be PASSIVE, FULL, RESTART or TRUNCATE")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the disconnected-state poll delay as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.MQTT.PollInterval) * time.Second
}

// CheckpointInterval returns the maintenance interval as a Duration.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.Maintenance.CheckpointInterval) * time.Second
}

// AcquireTimeout returns the pool checkout timeout as a Duration.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Database.AcquireTimeout) * time.Second
}
