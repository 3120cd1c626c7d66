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

// AppConfig is the main configuration structure for the application.
// It aggregates configurations for all subsystems.
type AppConfig struct {
	App       AppSettings     `yaml:"app"`       // General application configuration.
	Kafka     KafkaConfig     `yaml:"kafka"`     // Kafka connection and topics.
	Producer  ProducerConfig  `yaml:"producer"`  // Streamer configuration.
	Retry     RetryConfig     `yaml:"retry"`     // Caller-side resubmission.
	Generator GeneratorConfig `yaml:"generator"` // Sample data generation.
}

// AppSettings contains general application settings.
type AppSettings struct {
	Env       string `yaml:"env"`        // Target environment (dev or qa).
	LogLevel  string `yaml:"log_level"`  // Logging level.
	LogFormat string `yaml:"log_format"` // Logging format (console or json).
}

// KafkaConfig contains Kafka connection settings.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"` // Comma separated broker list.
	APIKey           string `yaml:"api_key"`           // SASL username.
	APISecret        string `yaml:"api_secret"`        // SASL password.
	SecurityProtocol string `yaml:"security_protocol"` // PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL.
	SASLMechanism    string `yaml:"sasl_mechanism"`    // PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	Driver           string `yaml:"driver"`            // confluent, kafka-go or sarama.
	DevTopic         string `yaml:"dev_topic"`         // Topic used in the dev environment.
	QATopic          string `yaml:"qa_topic"`          // Topic used in the qa environment.
	ConsumerGroup    string `yaml:"consumer_group"`    // Group used by the verify command.
}

// ProducerConfig contains streamer-specific settings.
type ProducerConfig struct {
	FlushTimeoutMs      int `yaml:"flush_timeout_ms"`      // Default flush timeout in milliseconds.
	CloseTimeoutMs      int `yaml:"close_timeout_ms"`      // Flush timeout used by Close in milliseconds.
	DeliveryChannelSize int `yaml:"delivery_channel_size"` // Buffer of the outcome channel.
}

// RetryConfig contains the resubmission settings.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`     // Resubmission rounds, 0 disables.
	InitialDelayMs int     `yaml:"initial_delay_ms"` // Initial delay in milliseconds.
	MaxDelayMs     int     `yaml:"max_delay_ms"`     // Maximum delay in milliseconds.
	Multiplier     float64 `yaml:"multiplier"`       // Backoff multiplier.
}

// GeneratorConfig contains sample generator settings.
type GeneratorConfig struct {
	MaxMembers int `yaml:"max_members"` // Upper bound of members in a random group.
}

// DefaultConfig returns a configuration with default values.
// These values are used if no external configuration is provided.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		App: AppSettings{
			Env:       EnvDev,
			LogLevel:  "info",
			LogFormat: "console",
		},
		Kafka: KafkaConfig{
			BootstrapServers: DefaultBootstrapServers,
			SecurityProtocol: DefaultSecurityProtocol,
			SASLMechanism:    DefaultSASLMechanism,
			Driver:           DriverConfluent,
			DevTopic:         DefaultDevTopic,
			QATopic:          DefaultQATopic,
			ConsumerGroup:    DefaultConsumerGroup,
		},
		Producer: ProducerConfig{
			FlushTimeoutMs:      int(ProducerFlushTimeout / time.Millisecond),
			CloseTimeoutMs:      int(ProducerCloseTimeout / time.Millisecond),
			DeliveryChannelSize: ProducerDeliveryChannelSize,
		},
		Retry: RetryConfig{
			MaxAttempts:    ResubmitMaxAttempts,
			InitialDelayMs: int(ResubmitInitialDelay / time.Millisecond),
			MaxDelayMs:     int(ResubmitMaxDelay / time.Millisecond),
			Multiplier:     ResubmitMultiplier,
		},
		Generator: GeneratorConfig{
			MaxMembers: GeneratorMaxMembers,
		},
	}
}

// Load builds the configuration from the defaults, the optional YAML file
// and the environment. Variables from envFile are added to the process
// environment first but never replace variables that are already set.
// Missing files are not an error; unreadable or malformed ones are.
func Load(configPath, envFile string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file: %w", err)
		}
	}

	if configPath != "" {
		if err := loadFromYAML(configPath, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error loading config file: %w", err)
			}
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides the configuration with environment variables.
func loadFromEnv(cfg *AppConfig) {
	if v := os.Getenv("GROUPLOAD_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.App.LogFormat = v
	}

	if v := os.Getenv("KAFKA_BOOTSTRAP_SERVERS"); v != "" {
		cfg.Kafka.BootstrapServers = v
	}
	if v := os.Getenv("KAFKA_API_KEY"); v != "" {
		cfg.Kafka.APIKey = v
	}
	if v := os.Getenv("KAFKA_API_SECRET"); v != "" {
		cfg.Kafka.APISecret = v
	}
	if v := os.Getenv("KAFKA_SECURITY_PROTOCOL"); v != "" {
		cfg.Kafka.SecurityProtocol = v
	}
	if v := os.Getenv("KAFKA_SASL_MECHANISM"); v != "" {
		cfg.Kafka.SASLMechanism = v
	}
	if v := os.Getenv("KAFKA_DRIVER"); v != "" {
		cfg.Kafka.Driver = v
	}
	if v := os.Getenv("KAFKA_DEV_TOPIC"); v != "" {
		cfg.Kafka.DevTopic = v
	}
	if v := os.Getenv("KAFKA_QA_TOPIC"); v != "" {
		cfg.Kafka.QATopic = v
	}
	if v := os.Getenv("KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}

	if v := os.Getenv("PRODUCER_FLUSH_TIMEOUT_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Producer.FlushTimeoutMs = i
		}
	}
	if v := os.Getenv("PRODUCER_CLOSE_TIMEOUT_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Producer.CloseTimeoutMs = i
		}
	}

	if v := os.Getenv("RESUBMIT_MAX_ATTEMPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = i
		}
	}
}

// GetFlushTimeout returns the flush timeout as a duration.
func (c *AppConfig) GetFlushTimeout() time.Duration {
	return time.Duration(c.Producer.FlushTimeoutMs) * time.Millisecond
}

// GetCloseTimeout returns the close timeout as a duration.
func (c *AppConfig) GetCloseTimeout() time.Duration {
	return time.Duration(c.Producer.CloseTimeoutMs) * time.Millisecond
}

// GetInitialRetryDelay returns the initial resubmission delay as a duration.
func (c *AppConfig) GetInitialRetryDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}

// GetMaxRetryDelay returns the maximum resubmission delay as a duration.
func (c *AppConfig) GetMaxRetryDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// Resolve validates the layered configuration and freezes it into Settings.
// It returns an *Error when a required setting is missing or invalid.
func (c *AppConfig) Resolve() (Settings, error) {
	k := c.Kafka

	env := strings.ToLower(strings.TrimSpace(c.App.Env))
	if env != EnvDev && env != EnvQA {
		return Settings{}, &Error{Field: "app.env", Err: fmt.Errorf("%w: %q (want dev or qa)", ErrInvalidSetting, c.App.Env)}
	}

	brokers := splitList(k.BootstrapServers)
	if len(brokers) == 0 {
		return Settings{}, &Error{Field: "kafka.bootstrap_servers", Err: ErrMissingSetting}
	}

	driver := strings.ToLower(strings.TrimSpace(k.Driver))
	if driver == "" {
		driver = DriverConfluent
	}
	switch driver {
	case DriverConfluent, DriverKafkaGo, DriverSarama:
	default:
		return Settings{}, &Error{Field: "kafka.driver", Err: fmt.Errorf("%w: %q", ErrInvalidSetting, k.Driver)}
	}

	protocol := strings.ToUpper(strings.TrimSpace(k.SecurityProtocol))
	switch protocol {
	case "PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL":
	default:
		return Settings{}, &Error{Field: "kafka.security_protocol", Err: fmt.Errorf("%w: %q", ErrInvalidSetting, k.SecurityProtocol)}
	}

	mechanism := strings.ToUpper(strings.TrimSpace(k.SASLMechanism))
	if strings.HasPrefix(protocol, "SASL") {
		switch mechanism {
		case MechanismPlain, MechanismSCRAMSHA256, MechanismSCRAMSHA512:
		default:
			return Settings{}, &Error{Field: "kafka.sasl_mechanism", Err: fmt.Errorf("%w: %q", ErrInvalidSetting, k.SASLMechanism)}
		}
		if k.APIKey == "" {
			return Settings{}, &Error{Field: "kafka.api_key", Err: ErrMissingSetting}
		}
		if k.APISecret == "" {
			return Settings{}, &Error{Field: "kafka.api_secret", Err: ErrMissingSetting}
		}
	}

	s := Settings{
		Environment:      env,
		Brokers:          brokers,
		APIKey:           k.APIKey,
		APISecret:        k.APISecret,
		SecurityProtocol: protocol,
		SASLMechanism:    mechanism,
		Driver:           driver,
		DevTopic:         k.DevTopic,
		QATopic:          k.QATopic,
		ConsumerGroup:    k.ConsumerGroup,
		FlushTimeout:     c.GetFlushTimeout(),
		CloseTimeout:     c.GetCloseTimeout(),
		DeliveryBuffer:   c.Producer.DeliveryChannelSize,
	}
	if s.Topic() == "" {
		return Settings{}, &Error{Field: "kafka." + env + "_topic", Err: ErrMissingSetting}
	}
	if s.CloseTimeout <= 0 {
		s.CloseTimeout = ProducerCloseTimeout
	}
	if s.DeliveryBuffer <= 0 {
		s.DeliveryBuffer = ProducerDeliveryChannelSize
	}
	return s, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
