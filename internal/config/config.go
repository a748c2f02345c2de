package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/docconv/internal/correction"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Worker     WorkerConfig     `yaml:"worker"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Correction CorrectionConfig `yaml:"correction"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds task store connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite, postgres
	Path            string        `yaml:"path"`
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
	ResetOnStart    bool          `yaml:"reset_on_start"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds job event publishing configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// DispatcherConfig holds producer settings
type DispatcherConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

// WorkerConfig holds consumer settings
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ExtractionConfig describes the external extraction tool invocation
type ExtractionConfig struct {
	Command  string `yaml:"command"`
	Mode     string `yaml:"mode"`
	Language string `yaml:"language"`
}

// CorrectionConfig holds language-model correction settings
type CorrectionConfig struct {
	Provider          string        `yaml:"provider"` // none, auto, openai, gemini
	CustomInstruction string        `yaml:"custom_instruction"`
	ImageWidth        int           `yaml:"image_width"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	OpenAI            OpenAIConfig  `yaml:"openai"`
	Gemini            GeminiConfig  `yaml:"gemini"`
}

// OpenAIConfig holds OpenAI provider settings
type OpenAIConfig struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"` // nil means the 0.1 default
	ImageDetail string   `yaml:"image_detail"`
}

// GeminiConfig holds Google Gemini provider settings
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// StorageConfig holds upload storage settings
type StorageConfig struct {
	DataDir        string        `yaml:"data_dir"`
	ReadRetries    int           `yaml:"read_retries"`
	ReadRetryDelay time.Duration `yaml:"read_retry_delay"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in values the file left empty
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/docconv.db"
	}
	if c.Dispatcher.PollInterval <= 0 {
		c.Dispatcher.PollInterval = 5 * time.Second
	}
	if c.Dispatcher.QueueCapacity <= 0 {
		c.Dispatcher.QueueCapacity = 20
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Extraction.Command == "" {
		c.Extraction.Command = "magic-pdf"
	}
	if c.Extraction.Mode == "" {
		c.Extraction.Mode = "ocr"
	}
	if c.Extraction.Language == "" {
		c.Extraction.Language = "german"
	}
	if c.Correction.Provider == "" {
		c.Correction.Provider = correction.ProviderAuto
	}
	if c.Correction.CustomInstruction == "" {
		c.Correction.CustomInstruction = "Please remove any leading line numbers."
	}
	if c.Correction.ImageWidth <= 0 {
		c.Correction.ImageWidth = 768
	}
	if c.Correction.JPEGQuality <= 0 {
		c.Correction.JPEGQuality = 85
	}
	if c.Correction.OpenAI.Temperature == nil {
		temperature := 0.1
		c.Correction.OpenAI.Temperature = &temperature
	}
	if c.Correction.Timeout <= 0 {
		c.Correction.Timeout = 20 * time.Second
	}
	if c.Correction.MaxRetries <= 0 {
		c.Correction.MaxRetries = 3
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.ReadRetries <= 0 {
		c.Storage.ReadRetries = 5
	}
	if c.Storage.ReadRetryDelay <= 0 {
		c.Storage.ReadRetryDelay = 2 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// validateDatabase checks the task store settings shared by both services
func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir is required")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("dispatcher poll_interval must be greater than 0")
	}

	if c.Dispatcher.QueueCapacity <= 0 {
		return fmt.Errorf("dispatcher queue_capacity must be greater than 0")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Extraction.Command == "" {
		return fmt.Errorf("extraction command is required")
	}

	switch c.Correction.Provider {
	case correction.ProviderNone, correction.ProviderAuto, correction.ProviderOpenAI, correction.ProviderGemini:
	default:
		return fmt.Errorf("unsupported correction provider: %q", c.Correction.Provider)
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}

// ResolveProvider decides the correction provider once, at startup.
// Keys missing from the file are looked up with getenv; "auto" prefers
// OpenAI over Gemini and falls back to no correction.
func (c *Config) ResolveProvider(getenv func(string) string) (string, error) {
	if c.Correction.OpenAI.APIKey == "" {
		c.Correction.OpenAI.APIKey = getenv("OPENAI_API_KEY")
	}
	if c.Correction.Gemini.APIKey == "" {
		c.Correction.Gemini.APIKey = getenv("GEMINI_API_KEY")
	}
	if c.Correction.Gemini.APIKey == "" {
		c.Correction.Gemini.APIKey = getenv("GOOGLE_API_KEY")
	}

	hasOpenAI := c.Correction.OpenAI.APIKey != ""
	hasGemini := c.Correction.Gemini.APIKey != ""

	switch c.Correction.Provider {
	case correction.ProviderNone:
		return correction.ProviderNone, nil
	case correction.ProviderAuto, "":
		switch {
		case hasOpenAI:
			return correction.ProviderOpenAI, nil
		case hasGemini:
			return correction.ProviderGemini, nil
		default:
			return correction.ProviderNone, nil
		}
	case correction.ProviderOpenAI:
		if !hasOpenAI {
			return "", fmt.Errorf("correction provider openai requires OPENAI_API_KEY")
		}
		return correction.ProviderOpenAI, nil
	case correction.ProviderGemini:
		if !hasGemini {
			return "", fmt.Errorf("correction provider gemini requires GEMINI_API_KEY or GOOGLE_API_KEY")
		}
		return correction.ProviderGemini, nil
	default:
		return "", fmt.Errorf("unsupported correction provider: %q", c.Correction.Provider)
	}
}
