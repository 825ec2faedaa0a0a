package agentruntime

import (
	"context"
	"io"
)

// ContextKey is the type of values the runtime stores on a turn's context.
type ContextKey string

const (
	ContextKeySessionID ContextKey = "sessionID"
	ContextKeyTurnID    ContextKey = "turnID"
)

// ToolSchema describes one tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ModelRequest struct {
	System   string
	Messages []Message
	Tools    []ToolSchema
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// ModelResponse is the decoded result of one non-streaming model call.
type ModelResponse struct {
	Text      string
	ToolCalls []ToolCallRequest
	Usage     Usage
}

type EventKind int

const (
	EventTextDelta EventKind = iota
	EventToolCallsRequested
	EventFinal
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventToolCallsRequested:
		return "tool_calls_requested"
	case EventFinal:
		return "final"
	default:
		return "unknown"
	}
}

// ModelEvent is one decoded event of a streaming model call. Text is set for EventTextDelta and
// EventFinal, ToolCalls for EventToolCallsRequested and Usage for EventFinal.
type ModelEvent struct {
	Kind      EventKind
	Text      string
	ToolCalls []ToolCallRequest
	Usage     Usage
}

func TextDelta(text string) ModelEvent {
	return ModelEvent{Kind: EventTextDelta, Text: text}
}

func ToolCallsRequested(calls []ToolCallRequest) ModelEvent {
	return ModelEvent{Kind: EventToolCallsRequested, ToolCalls: calls}
}

func Final(text string, usage Usage) ModelEvent {
	return ModelEvent{Kind: EventFinal, Text: text, Usage: usage}
}

// ModelStream yields events of one streaming model call. Next returns io.EOF after the last event.
type ModelStream interface {
	Next() (ModelEvent, error)
	Close() error
}

// Model is the contract the orchestrator needs from a language-model provider. Provider
// adapters decode their wire formats into ModelResponse and ModelEvent values.
type Model interface {
	Name() string
	Invoke(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	Stream(ctx context.Context, req ModelRequest) (ModelStream, error)
}

// collectStream drains a ModelStream into a ModelResponse, passing text deltas to onDelta.
func collectStream(stream ModelStream, onDelta func(string) error) (*ModelResponse, error) {
	resp := &ModelResponse{}
	var accumulated string
	var finalText string
	for {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case EventTextDelta:
			if ev.Text == "" {
				continue
			}
			accumulated += ev.Text
			if err := onDelta(ev.Text); err != nil {
				return nil, err
			}
		case EventToolCallsRequested:
			resp.ToolCalls = append(resp.ToolCalls, ev.ToolCalls...)
		case EventFinal:
			finalText = ev.Text
			resp.Usage = resp.Usage.Add(ev.Usage)
		}
	}
	// providers that only report the text on the final event still stream it once
	if accumulated == "" && finalText != "" {
		if err := onDelta(finalText); err != nil {
			return nil, err
		}
		accumulated = finalText
	}
	resp.Text = accumulated
	return resp, nil
}
