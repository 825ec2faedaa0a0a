package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/boat-builder/agentruntime"
)

var _ agentruntime.Model = &Anthropic{}

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	model     string
	maxTokens int64
	client    anthropic.Client
}

func NewAnthropic(cfg Config, opts ...option.RequestOption) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &Anthropic{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    anthropic.NewClient(reqOpts...),
	}
}

func (c *Anthropic) Name() string {
	return c.model
}

func (c *Anthropic) params(req agentruntime.ModelRequest) anthropic.MessageNewParams {
	system, messages := toAnthropicMessages(req.System, req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params
}

func (c *Anthropic) Invoke(ctx context.Context, req agentruntime.ModelRequest) (*agentruntime.ModelResponse, error) {
	msg, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}
	return fromAnthropicMessage(msg), nil
}

func (c *Anthropic) Stream(ctx context.Context, req agentruntime.ModelRequest) (agentruntime.ModelStream, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}
	return &anthropicStream{stream: stream}, nil
}

type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	message anthropic.Message
	pending []agentruntime.ModelEvent
	done    bool
}

func (s *anthropicStream) Next() (agentruntime.ModelEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return agentruntime.ModelEvent{}, io.EOF
		}
		if s.stream.Next() {
			event := s.stream.Current()
			if err := s.message.Accumulate(event); err != nil {
				return agentruntime.ModelEvent{}, err
			}
			if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					return agentruntime.TextDelta(delta.Text), nil
				}
			}
			continue
		}
		if err := s.stream.Err(); err != nil {
			return agentruntime.ModelEvent{}, err
		}

		s.done = true
		resp := fromAnthropicMessage(&s.message)
		if len(resp.ToolCalls) > 0 {
			s.pending = append(s.pending, agentruntime.ToolCallsRequested(resp.ToolCalls))
		}
		s.pending = append(s.pending, agentruntime.Final(resp.Text, resp.Usage))
	}
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

// toAnthropicMessages translates history into Messages API form. System messages join the system
// prompt, tool results travel as tool_result blocks of a user message, and consecutive messages
// of the same role are merged because the API requires alternating roles.
func toAnthropicMessages(system string, msgs []agentruntime.Message) (string, []anthropic.MessageParam) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}
	out := []anthropic.MessageParam{}
	add := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case agentruntime.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case agentruntime.RoleUser:
			if msg.Content != "" {
				add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
			}
		case agentruntime.RoleTool:
			add(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case agentruntime.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if strings.TrimSpace(call.Arguments) == "" {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			add(anthropic.MessageParamRoleAssistant, blocks...)
		}
	}
	return strings.Join(systemParts, "\n\n"), out
}

func toAnthropicTools(schemas []agentruntime.ToolSchema) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema.Parameters["properties"],
		}
		if required, ok := schema.Parameters["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, name)
				}
			}
		}
		tool := &anthropic.ToolParam{
			Name:        schema.Name,
			InputSchema: inputSchema,
		}
		if schema.Description != "" {
			tool.Description = anthropic.String(schema.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: tool})
	}
	return tools
}

func fromAnthropicMessage(msg *anthropic.Message) *agentruntime.ModelResponse {
	resp := &agentruntime.ModelResponse{
		Usage: agentruntime.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, agentruntime.ToolCallRequest{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	resp.Text = text.String()
	return resp
}
