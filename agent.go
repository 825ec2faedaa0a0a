// Package agentruntime provides the Agent orchestrator, which drives one user turn through model
// calls and tool rounds.
package agentruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const DefaultMaxRounds = 30

// Agent orchestrates calls to the model, runs the tools it asks for and determines the turn's
// answer. It holds no per-turn state.
type Agent struct {
	prompt    string
	tools     *ToolRegistry
	maxRounds int
	logger    *slog.Logger
}

type AgentOption func(*Agent)

// WithMaxRounds sets how many tool rounds a turn may run before failing. Values below 1 are ignored.
func WithMaxRounds(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

func WithAgentLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent creates an Agent with the given system prompt. A nil registry means no tools.
func NewAgent(prompt string, tools *ToolRegistry, opts ...AgentOption) *Agent {
	if tools == nil {
		tools = &ToolRegistry{tools: map[string]Tool{}}
	}
	a := &Agent{
		prompt:    prompt,
		tools:     tools,
		maxRounds: DefaultMaxRounds,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Prompt() string {
	return a.prompt
}

func (a *Agent) Tools() *ToolRegistry {
	return a.tools
}

func (a *Agent) MaxRounds() int {
	return a.maxRounds
}

// TurnOutcome is what a completed turn produced.
type TurnOutcome struct {
	Text   string
	Rounds int
	Usage  Usage
}

// Run drives one turn. history must already contain the user message. Tool-call messages and tool
// results are appended to history as rounds complete; the final assistant answer is not, that is
// left to the caller. When streaming is true every model call is streamed and each text fragment
// is passed to emit as it arrives.
func (a *Agent) Run(ctx context.Context, model Model, history *MessageList, streaming bool, emit func(string) error) (TurnOutcome, error) {
	var outcome TurnOutcome
	if emit == nil {
		emit = func(string) error { return nil }
	}

	rounds := 0
	for {
		req := ModelRequest{
			System:   a.prompt,
			Messages: history.Snapshot(),
			Tools:    a.tools.Schemas(),
		}

		resp, err := a.callModel(ctx, model, req, streaming, emit)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcome, ctxErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcome, err
			}
			a.logger.Error("Error calling model", "model", model.Name(), "round", rounds, "error", err)
			return outcome, &ModelInvocationError{Err: err}
		}
		outcome.Usage = outcome.Usage.Add(resp.Usage)

		// if there is no tool call, this is the answer
		if len(resp.ToolCalls) == 0 {
			outcome.Text = resp.Text
			outcome.Rounds = rounds
			return outcome, nil
		}

		history.Append(AssistantToolCallMessage(resp.Text, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return outcome, err
			}
			history.Append(ToolMessage(a.executeTool(ctx, call), call.ID))
		}

		rounds++
		outcome.Rounds = rounds
		if rounds >= a.maxRounds {
			a.logger.Warn("Round limit reached", "maxRounds", a.maxRounds)
			return outcome, &RoundLimitError{MaxRounds: a.maxRounds}
		}
	}
}

func (a *Agent) callModel(ctx context.Context, model Model, req ModelRequest, streaming bool, emit func(string) error) (*ModelResponse, error) {
	if !streaming {
		resp, err := model.Invoke(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, errors.New("model returned no response")
		}
		return resp, nil
	}

	stream, err := model.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return collectStream(stream, emit)
}

// executeTool runs one tool call and always returns the content of the tool message. Failures are
// converted to text so the model can see them.
func (a *Agent) executeTool(ctx context.Context, call ToolCallRequest) (content string) {
	tool, ok := a.tools.Lookup(call.Name)
	if !ok {
		a.logger.Error("Error getting tool", "tool", call.Name)
		return ToolErrorText(call.Name, &UnknownToolError{Name: call.Name})
	}

	arguments := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
			a.logger.Error("Error unmarshalling tool arguments", "tool", call.Name, "error", err)
			return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Tool panicked", "tool", call.Name, "panic", r)
			content = fmt.Sprintf("Error: tool %s panicked: %v", call.Name, r)
		}
	}()

	a.logger.Info("Tool", "tool", call.Name, "arguments", call.Arguments)
	output, err := tool.Execute(ctx, arguments)
	if err != nil {
		a.logger.Error("Error executing tool", "tool", call.Name, "error", err)
		return ToolErrorText(call.Name, &ToolExecutionError{Tool: call.Name, Err: err})
	}
	return output
}
