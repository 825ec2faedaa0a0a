package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/config"
	"github.com/boat-builder/agentruntime/llm"
	"github.com/boat-builder/agentruntime/mcpbridge"
	"github.com/boat-builder/agentruntime/prompts"
	"github.com/boat-builder/agentruntime/sandbox"
	"github.com/boat-builder/agentruntime/tools"
)

// runtime is everything a command needs, built from one Config.
type runtime struct {
	cfg      *config.Config
	registry *agentruntime.ToolRegistry
	pod      *agentruntime.Pod
	closers  []io.Closer
}

func (r *runtime) Close() error {
	if r.pod != nil {
		r.pod.Close()
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}

// buildTools assembles the registry: built-in tools, the sandbox tools when enabled, and every
// tool offered by the configured MCP servers.
func buildTools(ctx context.Context, cfg *config.Config, rt *runtime) (*sandbox.Runner, error) {
	toolsCfg := tools.Config{
		SearchBaseURL: cfg.Tools.SearchBaseURL,
		FetchMaxChars: cfg.Tools.FetchMaxChars,
		Web:           cfg.Tools.Web,
	}

	var runner *sandbox.Runner
	if cfg.Sandbox.Enabled {
		ws, err := sandbox.NewWorkspace(cfg.Sandbox.Root)
		if err != nil {
			return nil, err
		}
		runner = sandbox.NewRunner(ws,
			sandbox.WithTimeout(time.Duration(cfg.Sandbox.TimeoutSeconds)*time.Second),
			sandbox.WithMaxOutput(cfg.Sandbox.MaxOutput),
			sandbox.WithPython(cfg.Sandbox.Python),
		)
		toolsCfg.Runner = runner
	}

	var remoteTools []agentruntime.Tool
	for _, serverCfg := range cfg.MCPServers {
		remote, err := mcpbridge.Connect(ctx, serverCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server %s: %w", serverCfg.Name, err)
		}
		rt.closers = append(rt.closers, remote)
		list, err := remote.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools of MCP server %s: %w", serverCfg.Name, err)
		}
		slog.Info("Connected MCP server", "server", serverCfg.Name, "tools", len(list))
		remoteTools = append(remoteTools, list...)
	}

	registry, err := tools.Registry(toolsCfg, remoteTools...)
	if err != nil {
		return nil, err
	}
	rt.registry = registry
	return runner, nil
}

// systemPrompt renders the agent prompt with the tool list, the current sandbox files and the
// details of the serving process.
func systemPrompt(cfg *config.Config, modelName string, registry *agentruntime.ToolRegistry, runner *sandbox.Runner) (string, error) {
	data := prompts.SystemPromptData{
		UserPrompt: cfg.Agent.Prompt,
		MaxRounds:  cfg.Agent.MaxRounds,
		SessionDetails: map[string]string{
			"service": cfg.Server.ServiceName,
			"model":   modelName,
		},
	}
	for _, schema := range registry.Schemas() {
		data.Tools = append(data.Tools, prompts.ToolSummary{Name: schema.Name, Description: schema.Description})
	}
	if runner != nil {
		ws := runner.Workspace()
		data.SandboxRoot = ws.Root()
		entries, err := ws.List("")
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if !e.Dir {
				data.SandboxFiles = append(data.SandboxFiles, e.Path)
			}
		}
	}
	return prompts.SystemPrompt(data)
}

// newRuntime wires the model, tools, prompt and journal into a Pod. model overrides the
// configured provider when non-nil.
func newRuntime(ctx context.Context, cfg *config.Config, model agentruntime.Model) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if model == nil {
		model, err = llm.New(cfg.LLM())
		if err != nil {
			return nil, err
		}
	}

	runner, err := buildTools(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}
	prompt, err := systemPrompt(cfg, model.Name(), rt.registry, runner)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	agent := agentruntime.NewAgent(prompt, rt.registry, agentruntime.WithMaxRounds(cfg.Agent.MaxRounds))

	var podOpts []agentruntime.PodOption
	if cfg.Storage.Driver != "" {
		storage, err := agentruntime.NewStorage(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, storage)
		podOpts = append(podOpts, agentruntime.WithStorage(storage))
	}
	rt.pod = agentruntime.NewPod(model, agent, podOpts...)

	slog.Info("Runtime ready", "model", model.Name(), "tools", rt.registry.Names(), "maxRounds", cfg.Agent.MaxRounds)
	return rt, nil
}
