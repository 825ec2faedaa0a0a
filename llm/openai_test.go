package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boat-builder/agentruntime"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) (*OpenAI, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body := map[string]any{}
		require.NoError(t, json.Unmarshal(data, &body))
		bodies = append(bodies, body)
		handler(w, body)
	}))
	t.Cleanup(srv.Close)

	model := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "deepseek/deepseek-v3.1-terminus"}, option.WithMaxRetries(0))
	return model, &bodies
}

func weatherRequest() agentruntime.ModelRequest {
	return agentruntime.ModelRequest{
		System:   "You are a helpful AI assistant",
		Messages: []agentruntime.Message{agentruntime.UserMessage("weather in Paris?")},
		Tools: []agentruntime.ToolSchema{{
			Name:        "get_weather",
			Description: "Get weather for a specified city",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
				"required":   []any{"city"},
			},
		}},
	}
}

func TestOpenAIInvoke(t *testing.T) {
	model, bodies := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "deepseek/deepseek-v3.1-terminus",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}]
			}}],
			"usage": {"prompt_tokens": 31, "completion_tokens": 9, "total_tokens": 40}
		}`)
	})

	resp, err := model.Invoke(context.Background(), weatherRequest())
	require.NoError(t, err)
	assert.Equal(t, "", resp.Text)
	assert.Equal(t, []agentruntime.ToolCallRequest{{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`}}, resp.ToolCalls)
	assert.Equal(t, agentruntime.Usage{InputTokens: 31, OutputTokens: 9}, resp.Usage)

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	assert.Equal(t, "deepseek/deepseek-v3.1-terminus", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_weather", fn["name"])
	assert.NotContains(t, body, "stream")
}

func TestOpenAIStream(t *testing.T) {
	model, bodies := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := model.Stream(context.Background(), weatherRequest())
	require.NoError(t, err)
	defer stream.Close()

	var events []agentruntime.ModelEvent
	for {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, agentruntime.TextDelta("Hel"), events[0])
	assert.Equal(t, agentruntime.TextDelta("lo"), events[1])
	assert.Equal(t, agentruntime.EventFinal, events[2].Kind)
	assert.Equal(t, "Hello", events[2].Text)
	assert.Equal(t, agentruntime.Usage{InputTokens: 5, OutputTokens: 2}, events[2].Usage)

	body := (*bodies)[0]
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
}

func TestOpenAIStreamToolCalls(t *testing.T) {
	model, _ := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}`,
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]},"finish_reason":null}]}`,
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Tokyo\"}"}}]},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := model.Stream(context.Background(), weatherRequest())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, agentruntime.EventToolCallsRequested, ev.Kind)
	assert.Equal(t, []agentruntime.ToolCallRequest{{ID: "call_9", Name: "get_weather", Arguments: `{"city":"Tokyo"}`}}, ev.ToolCalls)

	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, agentruntime.EventFinal, ev.Kind)

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestOpenAIErrorStatus(t *testing.T) {
	model, _ := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := model.Invoke(context.Background(), weatherRequest())
	require.Error(t, err)

	_, err = model.Stream(context.Background(), weatherRequest())
	require.Error(t, err)
}

func TestToOpenAIMessagesRoundTrip(t *testing.T) {
	msgs := toOpenAIMessages("sys", []agentruntime.Message{
		agentruntime.UserMessage("hi"),
		agentruntime.AssistantToolCallMessage("looking", []agentruntime.ToolCallRequest{{ID: "1", Name: "calculate", Arguments: ""}}),
		agentruntime.ToolMessage("Calculation result: 1+1 = 2", "1"),
		agentruntime.AssistantMessage("2"),
	})
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, "looking", msgs[2].OfAssistant.Content.OfString.Value)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfAssistant)
}

func TestNewPicksProvider(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, m.Name())

	m, err = New(Config{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, m.Name())

	_, err = New(Config{Provider: "bard"})
	assert.Error(t, err)
}
