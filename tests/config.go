// Package tests holds end-to-end tests that talk to a real model provider. They are skipped unless
// an API key is available in the environment or a .env file.
package tests

import (
	"log"
	"os"

	"github.com/boat-builder/agentruntime/llm"
	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	NovitaAPIKey    string
	AnthropicAPIKey string
	ModelName       string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file, falling back to environment variables")
	}

	return &Config{
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		NovitaAPIKey:    getEnv("NOVITA_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ModelName:       getEnv("MODEL_NAME", ""),
	}
}

// LLM picks the first provider with a key. ok is false when none is configured.
func (c *Config) LLM() (cfg llm.Config, ok bool) {
	switch {
	case c.NovitaAPIKey != "":
		cfg = llm.Config{Provider: llm.ProviderOpenAI, APIKey: c.NovitaAPIKey, BaseURL: llm.DefaultBaseURL, Model: llm.DefaultModel}
	case c.OpenAIAPIKey != "":
		baseURL := c.OpenAIBaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		cfg = llm.Config{Provider: llm.ProviderOpenAI, APIKey: c.OpenAIAPIKey, BaseURL: baseURL, Model: "gpt-4o-mini"}
	case c.AnthropicAPIKey != "":
		cfg = llm.Config{Provider: llm.ProviderAnthropic, APIKey: c.AnthropicAPIKey, Model: llm.DefaultAnthropicModel}
	default:
		return cfg, false
	}
	if c.ModelName != "" {
		cfg.Model = c.ModelName
	}
	cfg.MaxTokens = llm.DefaultMaxTokens
	return cfg, true
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
