package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	pkgconfig "github.com/mjasion/balena-home/pkg/config"
)

// Dump options control which decoded packets are logged besides configured devices
const (
	DumpNone      = "none"
	DumpUnmatched = "unmatched"
	DumpAll       = "all"
)

// Config represents the receiver configuration
type Config struct {
	BLE           BLEConfig                     `yaml:"ble"`
	Prometheus    PrometheusConfig              `yaml:"prometheus"`
	Watchdog      WatchdogConfig                `yaml:"watchdog"`
	Health        HealthConfig                  `yaml:"health"`
	Logging       pkgconfig.LoggingConfig       `yaml:"logging"`
	OpenTelemetry pkgconfig.OpenTelemetryConfig `yaml:"opentelemetry"`
	Profiling     pkgconfig.ProfilingConfig     `yaml:"profiling"`
}

// BLEConfig contains BLE scanning configuration
type BLEConfig struct {
	Devices    []DeviceConfig `yaml:"devices"`
	DumpOption string         `yaml:"dumpOption" env:"BLE_DUMP_OPTION" env-default:"none"`
}

// DeviceConfig describes one BTHome sensor
type DeviceConfig struct {
	Name       string `yaml:"name"`
	MACAddress string `yaml:"macAddress"`
	// 32 hex characters; empty for unencrypted devices
	EncryptionKey string `yaml:"encryptionKey"`
	NamePrefix    string `yaml:"namePrefix"`
}

// PrometheusConfig contains Prometheus remote_write configuration
type PrometheusConfig struct {
	URL                 string `yaml:"url" env:"PROMETHEUS_URL" env-required:"true"`
	Username            string `yaml:"username" env:"PROMETHEUS_USERNAME"`
	Password            string `yaml:"password" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"15"`
	BatchSize           int    `yaml:"batchSize" env:"BATCH_SIZE" env-default:"500"`
	BufferSize          int    `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"10000"`
	StartAtEvenSecond   bool   `yaml:"startAtEvenSecond" env:"START_AT_EVEN_SECOND" env-default:"true"`
}

// WatchdogConfig controls the stale device check
type WatchdogConfig struct {
	Schedule          string `yaml:"schedule" env:"WATCHDOG_SCHEDULE" env-default:"@every 1m"`
	StaleAfterSeconds int    `yaml:"staleAfterSeconds" env:"WATCHDOG_STALE_AFTER_SECONDS" env-default:"600"`
}

// HealthConfig controls the health endpoint. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port" env:"HEALTH_CHECK_PORT" env-default:"8080"`
}

var (
	macAddressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	keyRegex        = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)
)

// Load loads configuration from a YAML file with environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration and normalizes MAC addresses and the dump option
func (c *Config) Validate() error {
	c.BLE.DumpOption = strings.ToLower(c.BLE.DumpOption)
	switch c.BLE.DumpOption {
	case DumpNone, DumpUnmatched, DumpAll:
	default:
		return fmt.Errorf("dumpOption must be one of: none, unmatched, all, got '%s'", c.BLE.DumpOption)
	}

	if len(c.BLE.Devices) == 0 && c.BLE.DumpOption == DumpNone {
		return fmt.Errorf("at least one device must be configured unless dumpOption is set")
	}

	seenNames := make(map[string]bool)
	seenMACs := make(map[string]bool)
	for i := range c.BLE.Devices {
		device := &c.BLE.Devices[i]

		if device.Name == "" {
			return fmt.Errorf("device %d: name is required", i)
		}
		if seenNames[device.Name] {
			return fmt.Errorf("device %s: duplicate name", device.Name)
		}
		seenNames[device.Name] = true

		if !macAddressRegex.MatchString(device.MACAddress) {
			return fmt.Errorf("device %s: invalid MAC address format: %s (expected format: XX:XX:XX:XX:XX:XX)", device.Name, device.MACAddress)
		}
		device.MACAddress = strings.ToUpper(device.MACAddress)
		if seenMACs[device.MACAddress] {
			return fmt.Errorf("device %s: duplicate MAC address %s", device.Name, device.MACAddress)
		}
		seenMACs[device.MACAddress] = true

		// Never echo the key back in the error
		if device.EncryptionKey != "" && !keyRegex.MatchString(device.EncryptionKey) {
			return fmt.Errorf("device %s: encryption key must be 32 hex characters", device.Name)
		}
	}

	if _, err := url.ParseRequestURI(c.Prometheus.URL); err != nil {
		return fmt.Errorf("invalid prometheus url: %w", err)
	}
	if c.Prometheus.PushIntervalSeconds < 1 {
		return fmt.Errorf("push interval must be at least 1 second")
	}
	if c.Prometheus.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.Prometheus.BufferSize < 1 {
		return fmt.Errorf("buffer size must be at least 1")
	}

	if _, err := cron.ParseStandard(c.Watchdog.Schedule); err != nil {
		return fmt.Errorf("invalid watchdog schedule %q: %w", c.Watchdog.Schedule, err)
	}
	if c.Watchdog.StaleAfterSeconds < 1 {
		return fmt.Errorf("watchdog staleAfterSeconds must be at least 1")
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health port must be between 0 and 65535, got %d", c.Health.Port)
	}

	if err := pkgconfig.ValidateLogging(&c.Logging); err != nil {
		return err
	}
	if err := pkgconfig.ValidateOpenTelemetry(&c.OpenTelemetry); err != nil {
		return err
	}
	return pkgconfig.ValidateProfiling(&c.Profiling)
}

// NewLogger builds the service logger from the logging section
func (c *Config) NewLogger() (*zap.Logger, error) {
	return pkgconfig.NewLogger(&c.Logging)
}

// PrintConfig logs the configuration with secrets masked
func (c *Config) PrintConfig(logger *zap.Logger) {
	devices := make([]string, len(c.BLE.Devices))
	for i, d := range c.BLE.Devices {
		devices[i] = fmt.Sprintf("%s (MAC:%s, encrypted:%t)", d.Name, d.MACAddress, d.EncryptionKey != "")
	}

	logger.Info("configuration loaded",
		zap.Int("device_count", len(c.BLE.Devices)),
		zap.Strings("devices", devices),
		zap.String("dump_option", c.BLE.DumpOption),
		zap.String("prometheus_url", c.Prometheus.URL),
		zap.String("prometheus_username", c.Prometheus.Username),
		zap.Bool("prometheus_password_set", c.Prometheus.Password != ""),
		zap.Int("push_interval_seconds", c.Prometheus.PushIntervalSeconds),
		zap.Int("batch_size", c.Prometheus.BatchSize),
		zap.Int("buffer_size", c.Prometheus.BufferSize),
		zap.Bool("start_at_even_second", c.Prometheus.StartAtEvenSecond),
		zap.String("watchdog_schedule", c.Watchdog.Schedule),
		zap.Int("stale_after_seconds", c.Watchdog.StaleAfterSeconds),
		zap.Int("health_port", c.Health.Port),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
}
