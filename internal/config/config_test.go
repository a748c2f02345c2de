package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docconv/internal/correction"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, "data/docconv.db", cfg.Database.Path)
				assert.Equal(t, "docconv_events", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "job.status", cfg.RabbitMQ.RoutingKey)
				assert.Equal(t, 5*time.Second, cfg.Dispatcher.PollInterval)
				assert.Equal(t, 20, cfg.Dispatcher.QueueCapacity)
				assert.Equal(t, "gpt-4o", cfg.Correction.OpenAI.Model)
				require.NotNil(t, cfg.Correction.OpenAI.Temperature)
				assert.InDelta(t, 0.1, *cfg.Correction.OpenAI.Temperature, 1e-9)
				assert.Equal(t, "docconv-worker", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/docconv.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.PollInterval)
	assert.Equal(t, 20, cfg.Dispatcher.QueueCapacity)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, "magic-pdf", cfg.Extraction.Command)
	assert.Equal(t, "ocr", cfg.Extraction.Mode)
	assert.Equal(t, "german", cfg.Extraction.Language)
	assert.Equal(t, correction.ProviderAuto, cfg.Correction.Provider)
	assert.Equal(t, "Please remove any leading line numbers.", cfg.Correction.CustomInstruction)
	assert.Equal(t, 768, cfg.Correction.ImageWidth)
	assert.Equal(t, 20*time.Second, cfg.Correction.Timeout)
	assert.Equal(t, 3, cfg.Correction.MaxRetries)
	require.NotNil(t, cfg.Correction.OpenAI.Temperature)
	assert.InDelta(t, 0.1, *cfg.Correction.OpenAI.Temperature, 1e-9)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoad_ZeroTemperature(t *testing.T) {
	cfg, err := Load("testdata/zero_temperature.yaml")
	require.NoError(t, err)

	require.NotNil(t, cfg.Correction.OpenAI.Temperature)
	assert.Zero(t, *cfg.Correction.OpenAI.Temperature)
}

func validConfig() *Config {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "sqlite", Path: "data/docconv.db"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "unsupported driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: "unsupported database driver",
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: "postgres", Port: 5432, Database: "jobs"}
			},
			errString: "database host is required",
		},
		{
			name: "postgres with bad port",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: "postgres", Host: "localhost", Database: "jobs"}
			},
			errString: "invalid database port",
		},
		{
			name: "valid postgres",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, Database: "jobs"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero queue capacity",
			mutate:    func(c *Config) { c.Dispatcher.QueueCapacity = 0 },
			errString: "queue_capacity must be greater than 0",
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.Correction.Provider = "claude" },
			errString: "unsupported correction provider",
		},
		{
			name:      "rabbitmq enabled without host",
			mutate:    func(c *Config) { c.RabbitMQ = RabbitMQConfig{Enabled: true, Port: 5672} },
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq enabled without exchange",
			mutate: func(c *Config) {
				c.RabbitMQ = RabbitMQConfig{Enabled: true, Host: "localhost", Port: 5672}
			},
			errString: "rabbitmq exchange name is required",
		},
		{
			name:   "rabbitmq disabled is not checked",
			mutate: func(c *Config) { c.RabbitMQ = RabbitMQConfig{Enabled: false} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_ResolveProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		want     string
		wantErr  bool
	}{
		{name: "auto without keys", provider: correction.ProviderAuto, want: correction.ProviderNone},
		{name: "auto prefers openai", provider: correction.ProviderAuto, env: map[string]string{"OPENAI_API_KEY": "sk", "GEMINI_API_KEY": "g"}, want: correction.ProviderOpenAI},
		{name: "auto falls back to gemini", provider: correction.ProviderAuto, env: map[string]string{"GEMINI_API_KEY": "g"}, want: correction.ProviderGemini},
		{name: "auto accepts google key", provider: correction.ProviderAuto, env: map[string]string{"GOOGLE_API_KEY": "g"}, want: correction.ProviderGemini},
		{name: "none ignores keys", provider: correction.ProviderNone, env: map[string]string{"OPENAI_API_KEY": "sk"}, want: correction.ProviderNone},
		{name: "explicit openai", provider: correction.ProviderOpenAI, env: map[string]string{"OPENAI_API_KEY": "sk"}, want: correction.ProviderOpenAI},
		{name: "explicit openai without key", provider: correction.ProviderOpenAI, wantErr: true},
		{name: "explicit gemini without key", provider: correction.ProviderGemini, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Correction.Provider = tt.provider

			got, err := cfg.ResolveProvider(func(k string) string { return tt.env[k] })
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
