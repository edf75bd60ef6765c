package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the crib agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Shadow     ShadowConfig     `yaml:"shadow"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies this device to the cloud.
type DeviceConfig struct {
	// ThingName is the shadow's thing name. When empty it is derived from
	// the hardware serial number found in SerialFile.
	ThingName  string `yaml:"thing_name"`
	SerialFile string `yaml:"serial_file"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig    `yaml:"broker"`
	TLS          MQTTTLSConfig       `yaml:"tls"`
	Auth         MQTTAuthConfig      `yaml:"auth"`
	QoS          int                 `yaml:"qos"`
	KeepAlive    int                 `yaml:"keep_alive"`
	CleanSession bool                `yaml:"clean_session"`
	Reconnect    MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTTLSConfig contains the mutual-TLS material used to reach the broker.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ShadowConfig contains device shadow reconciliation settings.
type ShadowConfig struct {
	QueueSize int `yaml:"queue_size"`
	// SyncOnConnect requests the full shadow document after every
	// (re)connection so deltas missed while offline are applied.
	SyncOnConnect bool `yaml:"sync_on_connect"`
}

// DatabaseConfig contains SQLite database settings for the attribute store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// HardwareConfig selects and configures the device backends.
type HardwareConfig struct {
	// Simulate replaces every peripheral with an in-memory fake.
	Simulate bool          `yaml:"simulate"`
	GPIO     GPIOConfig    `yaml:"gpio"`
	PWM      PWMConfig     `yaml:"pwm"`
	I2C      I2CConfig     `yaml:"i2c"`
	Thermal  ThermalConfig `yaml:"thermal"`
	Buttons  ButtonsConfig `yaml:"buttons"`
	Sensors  SensorsConfig `yaml:"sensors"`
	Lights   LightsConfig  `yaml:"lights"`
}

// GPIOConfig names the character device and line offsets in use.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	RedLEDPin int    `yaml:"red_led_pin"`
	IRLEDPin  int    `yaml:"ir_led_pin"`
}

// PWMConfig addresses the sysfs PWM channel driving the lights.
type PWMConfig struct {
	Chip     string `yaml:"chip"`
	Channel  int    `yaml:"channel"`
	PeriodNS int    `yaml:"period_ns"`
}

// I2CConfig addresses the TMP102 temperature sensor.
type I2CConfig struct {
	Bus     int `yaml:"bus"`
	Address int `yaml:"address"`
}

// ThermalConfig points at the SoC thermal zone used for cpu readings.
type ThermalConfig struct {
	Path string `yaml:"path"`
}

// ButtonsConfig configures the two front-panel buttons.
type ButtonsConfig struct {
	Pins []int `yaml:"pins"`
	// LongPress is the hold time in milliseconds that counts as a long press.
	LongPress int `yaml:"long_press"`
}

// SensorsConfig configures periodic sensor reporting.
type SensorsConfig struct {
	// Interval in seconds. Zero disables the poller.
	Interval int `yaml:"interval"`
}

// LightsConfig configures the lights driver.
type LightsConfig struct {
	// BlinkInterval is the on/off half-period in milliseconds.
	BlinkInterval int `yaml:"blink_interval"`
}

// SupervisorConfig contains task supervision settings.
type SupervisorConfig struct {
	// PollInterval in seconds between liveness checks.
	PollInterval int `yaml:"poll_interval"`
}

// APIConfig contains the local HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CRIB_SECTION_KEY
// For example: CRIB_DATABASE_PATH, CRIB_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// Default returns the built-in configuration without reading a file or
// the environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			SerialFile: "/proc/cpuinfo",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 8883,
			},
			TLS: MQTTTLSConfig{
				Enabled: true,
			},
			QoS:          1,
			KeepAlive:    30,
			CleanSession: false,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Shadow: ShadowConfig{
			QueueSize:     32,
			SyncOnConnect: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/crib.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Hardware: HardwareConfig{
			GPIO: GPIOConfig{
				Chip:      "gpiochip0",
				RedLEDPin: 17,
				IRLEDPin:  27,
			},
			PWM: PWMConfig{
				Chip:     "/sys/class/pwm/pwmchip0",
				Channel:  0,
				PeriodNS: 1000000,
			},
			I2C: I2CConfig{
				Bus:     1,
				Address: 0x48,
			},
			Thermal: ThermalConfig{
				Path: "/sys/class/thermal/thermal_zone0/temp",
			},
			Buttons: ButtonsConfig{
				Pins:      []int{23, 24},
				LongPress: 250,
			},
			Sensors: SensorsConfig{
				Interval: 300,
			},
			Lights: LightsConfig{
				BlinkInterval: 250,
			},
		},
		Supervisor: SupervisorConfig{
			PollInterval: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
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
// Environment variables follow the pattern: CRIB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRIB_THING_NAME"); v != "" {
		cfg.Device.ThingName = v
	}

	// MQTT
	if v := os.Getenv("CRIB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CRIB_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("CRIB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CRIB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CRIB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CRIB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CRIB_HARDWARE_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Hardware.Simulate = b
		}
	}

	if v := os.Getenv("CRIB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	// A persistent session is what makes resume-without-resubscribe possible.
	if c.MQTT.CleanSession {
		errs = append(errs, "mqtt.clean_session must be false")
	}
	if c.MQTT.TLS.Enabled && (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	if c.Shadow.QueueSize < 1 {
		errs = append(errs, "shadow.queue_size must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Supervisor.PollInterval < 1 {
		errs = append(errs, "supervisor.poll_interval must be at least 1 second")
	}

	if len(c.Hardware.Buttons.Pins) > 2 {
		errs = append(errs, "hardware.buttons.pins supports at most two buttons")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
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

// PollInterval returns the supervisor liveness poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Supervisor.PollInterval) * time.Second
}

// SensorInterval returns the sensor reporting interval; zero disables it.
func (c *Config) SensorInterval() time.Duration {
	return time.Duration(c.Hardware.Sensors.Interval) * time.Second
}

// LongPress returns the button long-press threshold.
func (c *Config) LongPress() time.Duration {
	return time.Duration(c.Hardware.Buttons.LongPress) * time.Millisecond
}

// BlinkInterval returns the lights blink half-period.
func (c *Config) BlinkInterval() time.Duration {
	return time.Duration(c.Hardware.Lights.BlinkInterval) * time.Millisecond
}
