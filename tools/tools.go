// Package tools provides the built-in tools an agent can call.
package tools

import (
	"net/http"
	"time"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/sandbox"
)

type Config struct {
	// Runner enables the sandbox tools when set.
	Runner *sandbox.Runner
	// SearchBaseURL overrides the DuckDuckGo HTML endpoint.
	SearchBaseURL string
	HTTPClient    *http.Client
	FetchMaxChars int
	// Web enables search_information and fetch_url.
	Web bool
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 20 * time.Second}
}

// Builtin returns the tools enabled by cfg, in the order they are offered to the model.
func Builtin(cfg Config) []agentruntime.Tool {
	tools := []agentruntime.Tool{
		NewWeather(),
		NewCalculator(),
		NewClock(),
	}
	if cfg.Web {
		tools = append(tools,
			NewSearch(cfg.httpClient(), cfg.SearchBaseURL),
			NewFetch(cfg.httpClient(), cfg.FetchMaxChars),
		)
	}
	if cfg.Runner != nil {
		tools = append(tools, SandboxTools(cfg.Runner)...)
	}
	return tools
}

// Registry builds a registry over Builtin(cfg) plus extra.
func Registry(cfg Config, extra ...agentruntime.Tool) (*agentruntime.ToolRegistry, error) {
	return agentruntime.NewToolRegistry(append(Builtin(cfg), extra...)...)
}
