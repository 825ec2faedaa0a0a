package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/boat-builder/agentruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAnthropicMessagesMergesRoles(t *testing.T) {
	system, msgs := toAnthropicMessages("base prompt", []agentruntime.Message{
		agentruntime.SystemMessage("extra rule"),
		agentruntime.UserMessage("weather in London and Paris?"),
		agentruntime.AssistantToolCallMessage("checking", []agentruntime.ToolCallRequest{
			{ID: "tu_1", Name: "get_weather", Arguments: `{"city":"London"}`},
			{ID: "tu_2", Name: "get_weather", Arguments: ""},
		}),
		agentruntime.ToolMessage("London: Cloudy, 15°C", "tu_1"),
		agentruntime.ToolMessage("Paris: Partly cloudy, 18°C", "tu_2"),
		agentruntime.AssistantMessage("London is cloudy, Paris partly cloudy."),
	})

	assert.Equal(t, "base prompt\n\nextra rule", system)
	require.Len(t, msgs, 4)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	require.NotNil(t, msgs[1].Content[1].OfToolUse)
	assert.Equal(t, "tu_1", msgs[1].Content[1].OfToolUse.ID)
	assert.Equal(t, json.RawMessage("{}"), msgs[1].Content[2].OfToolUse.Input)

	// both tool results share one user message
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "tu_1", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "tu_2", msgs[2].Content[1].OfToolResult.ToolUseID)

	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[3].Role)
}

func TestToAnthropicTools(t *testing.T) {
	tools := toAnthropicTools([]agentruntime.ToolSchema{{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"expression": map[string]any{"type": "string"}},
			"required":   []any{"expression"},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "calculate", tools[0].OfTool.Name)
	assert.Equal(t, []string{"expression"}, tools[0].OfTool.InputSchema.Required)
	assert.Equal(t, "Evaluate an arithmetic expression", tools[0].OfTool.Description.Value)
}

func TestFromAnthropicMessage(t *testing.T) {
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "tu_7", "name": "get_current_time", "input": {}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 120, "output_tokens": 17}
	}`), &msg))

	resp := fromAnthropicMessage(&msg)
	assert.Equal(t, "Let me check.", resp.Text)
	assert.Equal(t, []agentruntime.ToolCallRequest{{ID: "tu_7", Name: "get_current_time", Arguments: "{}"}}, resp.ToolCalls)
	assert.Equal(t, agentruntime.Usage{InputTokens: 120, OutputTokens: 17}, resp.Usage)
}
