// Package mcpbridge connects agents to Model Context Protocol servers and exposes tool registries
// as MCP servers.
package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/boat-builder/agentruntime"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes one MCP server. Exactly one of Command and URL is set.
type ServerConfig struct {
	Name    string            `toml:"name" yaml:"name"`
	Command string            `toml:"command" yaml:"command"`
	Args    []string          `toml:"args" yaml:"args"`
	Env     map[string]string `toml:"env" yaml:"env"`
	URL     string            `toml:"url" yaml:"url"`
}

func (c ServerConfig) transport(ctx context.Context) (mcp.Transport, error) {
	switch {
	case c.Command != "" && c.URL != "":
		return nil, fmt.Errorf("mcp server %q: command and url are mutually exclusive", c.Name)
	case c.Command != "":
		cmd := exec.CommandContext(ctx, c.Command, c.Args...)
		if len(c.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range c.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case c.URL != "":
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return nil, fmt.Errorf("mcp server %q: unsupported url %q", c.Name, c.URL)
		}
		return &mcp.StreamableClientTransport{Endpoint: c.URL, HTTPClient: http.DefaultClient}, nil
	default:
		return nil, fmt.Errorf("mcp server %q: command or url is required", c.Name)
	}
}

// Remote is a connected MCP server.
type Remote struct {
	name    string
	session *mcp.ClientSession
	logger  *slog.Logger
}

// Connect starts or dials the server described by cfg.
func Connect(ctx context.Context, cfg ServerConfig) (*Remote, error) {
	transport, err := cfg.transport(ctx)
	if err != nil {
		return nil, err
	}
	return ConnectTransport(ctx, cfg.Name, transport)
}

func ConnectTransport(ctx context.Context, name string, transport mcp.Transport) (*Remote, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "agentruntime", Version: agentruntime.Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mcp server %q: %w", name, err)
	}
	logger := slog.Default().With("mcpServer", name)
	logger.Info("Connected to MCP server")
	return &Remote{name: name, session: session, logger: logger}, nil
}

func (r *Remote) Name() string {
	return r.name
}

// Tools lists the server's tools as agentruntime tools.
func (r *Remote) Tools(ctx context.Context) ([]agentruntime.Tool, error) {
	tools := []agentruntime.Tool{}
	for tool, err := range r.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("failed to list tools of %q: %w", r.name, err)
		}
		params, err := normalizeSchema(tool.InputSchema)
		if err != nil {
			r.logger.Warn("Skipping tool with unreadable schema", "tool", tool.Name, "error", err)
			continue
		}
		tools = append(tools, &remoteTool{
			session:     r.session,
			name:        tool.Name,
			description: tool.Description,
			params:      params,
		})
	}
	return tools, nil
}

func (r *Remote) Close() error {
	return r.session.Close()
}

func normalizeSchema(schema any) (map[string]any, error) {
	out := map[string]any{}
	if schema != nil {
		data, err := json.Marshal(schema)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out, nil
}

type remoteTool struct {
	session     *mcp.ClientSession
	name        string
	description string
	params      map[string]any
}

func (t *remoteTool) Name() string {
	return t.name
}

func (t *remoteTool) Description() string {
	return t.description
}

func (t *remoteTool) Parameters() map[string]any {
	return t.params
}

func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{Name: t.name, Arguments: args})
	if err != nil {
		return "", err
	}
	text := contentText(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch c := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s]", c.MIMEType))
		default:
			data, err := json.Marshal(c)
			if err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
