// Package config loads the runtime configuration.
//
// Values come from, in increasing priority: built-in defaults, an optional TOML or YAML file
// (chosen by extension), a .env file in the working directory, and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/llm"
	"github.com/boat-builder/agentruntime/mcpbridge"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPrompt = "You are a helpful AI assistant. Use the available tools when they help answer the user."

type Config struct {
	Model      ModelConfig              `toml:"model" yaml:"model"`
	Agent      AgentConfig              `toml:"agent" yaml:"agent"`
	Server     ServerConfig             `toml:"server" yaml:"server"`
	Sandbox    SandboxConfig            `toml:"sandbox" yaml:"sandbox"`
	Tools      ToolsConfig              `toml:"tools" yaml:"tools"`
	Storage    StorageConfig            `toml:"storage" yaml:"storage"`
	Log        LogConfig                `toml:"log" yaml:"log"`
	MCPServers []mcpbridge.ServerConfig `toml:"mcp_servers" yaml:"mcp_servers"`
}

type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider        string `toml:"provider" yaml:"provider"`
	APIKey          string `toml:"api_key" yaml:"api_key"`
	BaseURL         string `toml:"base_url" yaml:"base_url"`
	Name            string `toml:"name" yaml:"name"`
	MaxTokens       int64  `toml:"max_tokens" yaml:"max_tokens"`
	SendIdentifiers bool   `toml:"send_identifiers" yaml:"send_identifiers"`
}

type AgentConfig struct {
	Prompt    string `toml:"prompt" yaml:"prompt"`
	MaxRounds int    `toml:"max_rounds" yaml:"max_rounds"`
}

type ServerConfig struct {
	Port            int    `toml:"port" yaml:"port"`
	ServiceName     string `toml:"service_name" yaml:"service_name"`
	ShutdownSeconds int    `toml:"shutdown_seconds" yaml:"shutdown_seconds"`
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSeconds) * time.Second
}

type SandboxConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Root           string `toml:"root" yaml:"root"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	MaxOutput      int    `toml:"max_output" yaml:"max_output"`
	Python         string `toml:"python" yaml:"python"`
}

type ToolsConfig struct {
	Web           bool   `toml:"web" yaml:"web"`
	SearchBaseURL string `toml:"search_base_url" yaml:"search_base_url"`
	FetchMaxChars int    `toml:"fetch_max_chars" yaml:"fetch_max_chars"`
}

// StorageConfig selects the turn journal. An empty driver disables it.
type StorageConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:  llm.ProviderOpenAI,
			BaseURL:   llm.DefaultBaseURL,
			Name:      llm.DefaultModel,
			MaxTokens: llm.DefaultMaxTokens,
		},
		Agent: AgentConfig{
			Prompt:    DefaultPrompt,
			MaxRounds: agentruntime.DefaultMaxRounds,
		},
		Server: ServerConfig{
			Port:            8080,
			ServiceName:     "agentruntime",
			ShutdownSeconds: 10,
		},
		Sandbox: SandboxConfig{
			Root:           "sandbox",
			TimeoutSeconds: 60,
			MaxOutput:      64 * 1024,
			Python:         "python3",
		},
		Tools: ToolsConfig{
			Web:           true,
			FetchMaxChars: 8000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       filepath.Join("app_logs", "app.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load builds the configuration from defaults, the file at path (skipped when path is empty),
// .env and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Error loading .env file, falling back to environment variables", "error", err)
	}

	cfg := Default()
	if path != "" {
		if err := ReadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile decodes a TOML or YAML file over cfg. Keys absent from the file keep their values.
func ReadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
	getInt := func(key string, dst *int) error {
		v, ok := get(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	if v, ok := get("MODEL_PROVIDER"); ok {
		c.Model.Provider = strings.ToLower(v)
	}
	if c.Model.Provider == llm.ProviderAnthropic {
		if v, ok := get("ANTHROPIC_API_KEY"); ok {
			c.Model.APIKey = v
		}
		if v, ok := get("ANTHROPIC_BASE_URL"); ok {
			c.Model.BaseURL = v
		}
	} else {
		if v, ok := get("NOVITA_API_KEY", "OPENAI_API_KEY"); ok {
			c.Model.APIKey = v
		}
		if v, ok := get("OPENAI_BASE_URL"); ok {
			c.Model.BaseURL = v
		}
	}
	if v, ok := get("MODEL_NAME"); ok {
		c.Model.Name = v
	}
	if err := getInt("AGENT_MAX_ROUNDS", &c.Agent.MaxRounds); err != nil {
		return err
	}
	if err := getInt("PORT", &c.Server.Port); err != nil {
		return err
	}
	if v, ok := get("SANDBOX_ROOT"); ok {
		c.Sandbox.Root = v
		c.Sandbox.Enabled = true
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Storage.DSN = v
		c.Storage.Driver = driverFromDSN(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// normalize drops OpenAI-compatible defaults that make no sense for the selected provider.
func (c *Config) normalize() {
	if c.Model.Provider != llm.ProviderAnthropic {
		return
	}
	if c.Model.BaseURL == llm.DefaultBaseURL {
		c.Model.BaseURL = ""
	}
	if c.Model.Name == llm.DefaultModel {
		c.Model.Name = llm.DefaultAnthropicModel
	}
}

func driverFromDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Model.Provider {
	case "", llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}
	if c.Agent.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Sandbox.Enabled && c.Sandbox.Root == "" {
		errs = append(errs, errors.New("sandbox.root is required when the sandbox is enabled"))
	}
	for i, s := range c.MCPServers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp_servers[%d]: name is required", i))
		}
	}
	return errors.Join(errs...)
}

// LLM returns the provider configuration for llm.New.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider:        c.Model.Provider,
		APIKey:          c.Model.APIKey,
		BaseURL:         c.Model.BaseURL,
		Model:           c.Model.Name,
		MaxTokens:       c.Model.MaxTokens,
		SendIdentifiers: c.Model.SendIdentifiers,
	}
}
