package llm

import (
	"context"
	"errors"
	"io"

	"github.com/boat-builder/agentruntime"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ agentruntime.Model = &OpenAI{}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model           string
	maxTokens       int64
	sendIdentifiers bool
	client          openai.Client
}

func NewOpenAI(cfg Config, opts ...option.RequestOption) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAI{
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		sendIdentifiers: cfg.SendIdentifiers,
		client:          openai.NewClient(reqOpts...),
	}
}

func (c *OpenAI) Name() string {
	return c.model
}

func (c *OpenAI) optsWithIds(ctx context.Context) []option.RequestOption {
	opts := []option.RequestOption{}
	if !c.sendIdentifiers {
		return opts
	}
	if sessionID, ok := ctx.Value(agentruntime.ContextKeySessionID).(string); ok {
		opts = append(opts, option.WithJSONSet("custom_identifier", sessionID))
	}
	if turnID, ok := ctx.Value(agentruntime.ContextKeyTurnID).(string); ok {
		opts = append(opts, option.WithJSONSet("turn_identifier", turnID))
	}
	return opts
}

func (c *OpenAI) params(req agentruntime.ModelRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req.System, req.Messages),
		Model:    c.model,
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}
	return params
}

func (c *OpenAI) Invoke(ctx context.Context, req agentruntime.ModelRequest) (*agentruntime.ModelResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.params(req), c.optsWithIds(ctx)...)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("completion has no choices")
	}
	msg := completion.Choices[0].Message
	return &agentruntime.ModelResponse{
		Text:      msg.Content,
		ToolCalls: fromOpenAIToolCalls(msg.ToolCalls),
		Usage:     fromOpenAIUsage(completion.Usage),
	}, nil
}

func (c *OpenAI) Stream(ctx context.Context, req agentruntime.ModelRequest) (agentruntime.ModelStream, error) {
	params := c.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params, c.optsWithIds(ctx)...)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, err
	}
	return &openAIStream{stream: stream}, nil
}

// openAIStream decodes chunks into model events. Content deltas are forwarded as they arrive;
// tool calls and usage are only known once the accumulator has seen the whole response.
type openAIStream struct {
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
	completion openai.ChatCompletionAccumulator
	pending    []agentruntime.ModelEvent
	done       bool
}

func (s *openAIStream) Next() (agentruntime.ModelEvent, error) {
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
			chunk := s.stream.Current()
			s.completion.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				return agentruntime.TextDelta(chunk.Choices[0].Delta.Content), nil
			}
			continue
		}
		if err := s.stream.Err(); err != nil {
			return agentruntime.ModelEvent{}, err
		}

		s.done = true
		var text string
		var calls []agentruntime.ToolCallRequest
		if len(s.completion.Choices) > 0 {
			text = s.completion.Choices[0].Message.Content
			calls = fromOpenAIToolCalls(s.completion.Choices[0].Message.ToolCalls)
		}
		if len(calls) > 0 {
			s.pending = append(s.pending, agentruntime.ToolCallsRequested(calls))
		}
		s.pending = append(s.pending, agentruntime.Final(text, fromOpenAIUsage(s.completion.Usage)))
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func toOpenAIMessages(system string, msgs []agentruntime.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range msgs {
		switch msg.Role {
		case agentruntime.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agentruntime.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case agentruntime.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case agentruntime.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, call := range msg.ToolCalls {
				args := call.Arguments
				if args == "" {
					args = "{}"
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func toOpenAITools(schemas []agentruntime.ToolSchema) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, schema := range schemas {
		tool := openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:       schema.Name,
				Parameters: openai.FunctionParameters(schema.Parameters),
			},
		}
		if schema.Description != "" {
			tool.Function.Description = openai.String(schema.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func fromOpenAIToolCalls(calls []openai.ChatCompletionMessageToolCall) []agentruntime.ToolCallRequest {
	if len(calls) == 0 {
		return nil
	}
	out := make([]agentruntime.ToolCallRequest, 0, len(calls))
	for _, call := range calls {
		out = append(out, agentruntime.ToolCallRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

func fromOpenAIUsage(u openai.CompletionUsage) agentruntime.Usage {
	return agentruntime.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}
