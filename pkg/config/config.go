package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the agent reads
const EnvPrefix = "APP_"

// DefaultConfigFiles are searched in order when no config file is named explicitly.
// Missing files are skipped.
var DefaultConfigFiles = []string{"config.yaml", "/etc/doorbell/config.yaml"}

// Config holds the configuration for the doorbell agent
type Config struct {
	// MQTT configuration
	MQTTURL         string `yaml:"mqtt_url"`
	MQTTUser        string `yaml:"mqtt_username"`
	MQTTPassword    string `yaml:"mqtt_password"`
	MQTTTopic       string `yaml:"mqtt_topic"`
	MQTTMessage     string `yaml:"mqtt_message"`
	MQTTClientID    string `yaml:"mqtt_client_id"`
	MQTTTLSInsecure bool   `yaml:"mqtt_tls_insecure"`
	MQTTCAFile      string `yaml:"mqtt_ca_file"`

	// GPIO configuration
	GPIOChip string `yaml:"gpio_chip"`
	GPIOPort int    `yaml:"gpio_port"`

	// Redis press history (disabled when RedisHost is empty)
	RedisHost        string `yaml:"redis_host"`
	RedisPort        int    `yaml:"redis_port"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDB          int    `yaml:"redis_db"`
	PressHistorySize int    `yaml:"press_history_size"`

	// Service configuration
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	LogLevel    string `yaml:"log_level"`

	// ExitNonZeroOnPublishFailure makes a fatal publish end the process with a
	// non-zero status. Off by default: a failed publish is a normal end of run.
	ExitNonZeroOnPublishFailure bool `yaml:"exit_nonzero_on_publish_failure"`

	// ConfigFile is the file the settings were read from, if any
	ConfigFile string `yaml:"-"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTURL:          "",
		MQTTUser:         "",
		MQTTPassword:     "",
		MQTTTopic:        "",
		MQTTMessage:      "",
		MQTTClientID:     "",
		MQTTTLSInsecure:  true,
		GPIOChip:         "gpiochip0",
		GPIOPort:         -1,
		RedisHost:        "",
		RedisPort:        6379,
		RedisPassword:    "",
		RedisDB:          0,
		PressHistorySize: 100,
		ServiceName:      "doorbell-agent",
		HealthPort:       0,
		LogLevel:         "info",
	}
}

// Load builds the configuration with hierarchy: defaults → file → env → flags
func Load(args []string) (*Config, error) {
	c := NewConfig()

	path, explicit := configFileFromArgs(args)
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
		explicit = path != ""
	}

	if explicit {
		if err := c.LoadFromFile(path); err != nil {
			return nil, err
		}
	} else {
		for _, candidate := range DefaultConfigFiles {
			err := c.LoadFromFile(candidate)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			break
		}
	}

	c.LoadFromEnv()

	if err := c.LoadFromFlags(args); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadFromFile overlays values from a YAML file. Keys absent from the file keep their current value.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.ConfigFile = path
	return nil
}

// LoadFromEnv loads configuration from environment variables with APP_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := getenv("MQTT_URL"); v != "" {
		c.MQTTURL = v
	}
	if v := getenv("MQTT_USERNAME"); v != "" {
		c.MQTTUser = v
	}
	if v := getenv("MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := getenv("MQTT_TOPIC"); v != "" {
		c.MQTTTopic = v
	}
	if v := getenv("MQTT_MESSAGE"); v != "" {
		c.MQTTMessage = v
	}
	if v := getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}
	if v := getenv("MQTT_TLS_INSECURE"); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			c.MQTTTLSInsecure = insecure
		}
	}
	if v := getenv("MQTT_CA_FILE"); v != "" {
		c.MQTTCAFile = v
	}

	// GPIO configuration
	if v := getenv("GPIO_CHIP"); v != "" {
		c.GPIOChip = v
	}
	if v := getenv("GPIO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.GPIOPort = port
		}
	}

	// Redis configuration
	if v := getenv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}
	if v := getenv("PRESS_HISTORY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.PressHistorySize = size
		}
	}

	// Service configuration
	if v := getenv("SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := getenv("HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("EXIT_NONZERO_ON_PUBLISH_FAILURE"); v != "" {
		if exit, err := strconv.ParseBool(v); err == nil {
			c.ExitNonZeroOnPublishFailure = exit
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags(args []string) error {
	flags := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// Accepted here so the full parse does not reject it; read earlier by Load.
	flags.String("config", c.ConfigFile, "Path to YAML config file")

	// MQTT flags
	flags.StringVar(&c.MQTTURL, "mqtt-url", c.MQTTURL, "MQTT broker URL (e.g. ssl://broker:8883)")
	flags.StringVar(&c.MQTTUser, "mqtt-username", c.MQTTUser, "MQTT username")
	flags.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	flags.StringVar(&c.MQTTTopic, "mqtt-topic", c.MQTTTopic, "MQTT topic to publish doorbell presses to")
	flags.StringVar(&c.MQTTMessage, "mqtt-message", c.MQTTMessage, "Message payload published on every press")
	flags.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")
	flags.BoolVar(&c.MQTTTLSInsecure, "mqtt-tls-insecure", c.MQTTTLSInsecure, "Skip broker certificate verification")
	flags.StringVar(&c.MQTTCAFile, "mqtt-ca-file", c.MQTTCAFile, "PEM CA bundle used when certificate verification is on")

	// GPIO flags
	flags.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO chip device name")
	flags.IntVar(&c.GPIOPort, "gpio-port", c.GPIOPort, "GPIO line offset the doorbell button is wired to")

	// Redis flags
	flags.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname for press history (empty disables)")
	flags.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	flags.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	flags.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	flags.IntVar(&c.PressHistorySize, "press-history-size", c.PressHistorySize, "Number of presses kept in history")

	// Service flags
	flags.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	flags.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port (0 disables)")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	flags.BoolVar(&c.ExitNonZeroOnPublishFailure, "exit-nonzero-on-publish-failure", c.ExitNonZeroOnPublishFailure, "Exit with a non-zero status when a publish fails")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTURL == "" {
		return fmt.Errorf("MQTT URL is required")
	}
	u, err := url.Parse(c.MQTTURL)
	if err != nil {
		return fmt.Errorf("invalid MQTT URL %q: %w", c.MQTTURL, err)
	}
	validSchemes := map[string]bool{
		"tcp":   true,
		"mqtt":  true,
		"ssl":   true,
		"tls":   true,
		"mqtts": true,
		"ws":    true,
		"wss":   true,
	}
	if !validSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("unsupported MQTT URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("MQTT URL %q has no host", c.MQTTURL)
	}
	if c.MQTTUser == "" {
		return fmt.Errorf("MQTT username is required")
	}
	if c.MQTTPassword == "" {
		return fmt.Errorf("MQTT password is required")
	}
	if c.MQTTTopic == "" {
		return fmt.Errorf("MQTT topic is required")
	}
	if strings.ContainsAny(c.MQTTTopic, "+#") {
		return fmt.Errorf("MQTT topic %q must not contain wildcards", c.MQTTTopic)
	}
	if c.MQTTMessage == "" {
		return fmt.Errorf("MQTT message is required")
	}
	if c.GPIOPort < 0 || c.GPIOPort > 255 {
		return fmt.Errorf("GPIO port must be between 0 and 255")
	}
	if c.GPIOChip == "" {
		return fmt.Errorf("GPIO chip is required")
	}
	if c.RedisHost != "" && (c.RedisPort <= 0 || c.RedisPort > 65535) {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PressHistorySize <= 0 {
		return fmt.Errorf("press history size must be positive")
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 0 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// HistoryEnabled reports whether press history should be written to Redis
func (c *Config) HistoryEnabled() bool {
	return c.RedisHost != ""
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// RedactedMQTTURL returns the broker URL with any embedded password removed, for logging
func (c *Config) RedactedMQTTURL() string {
	u, err := url.Parse(c.MQTTURL)
	if err != nil {
		return c.MQTTURL
	}
	return u.Redacted()
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// configFileFromArgs picks --config out of args ahead of the full flag parse
func configFileFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v, true
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}
