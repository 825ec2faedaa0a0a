package tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/llm"
	"github.com/boat-builder/agentruntime/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveSession(t *testing.T) *agentruntime.Session {
	t.Helper()
	llmCfg, ok := LoadConfig().LLM()
	if !ok {
		t.Skip("no model API key configured")
	}
	model, err := llm.New(llmCfg)
	require.NoError(t, err)

	registry, err := tools.Registry(tools.Config{})
	require.NoError(t, err)
	agent := agentruntime.NewAgent("You are a terse assistant. Use tools for arithmetic.", registry,
		agentruntime.WithMaxRounds(5))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	sess := agentruntime.NewSession(ctx, model, agent)
	t.Cleanup(sess.Close)
	return sess
}

func TestSimpleConversation(t *testing.T) {
	sess := newLiveSession(t)

	result := sess.Complete(context.Background(), "This is a test script. Respond with just 'test confirmed' for the test to pass.")
	require.False(t, result.Failed(), result.Error)
	t.Log("Received response:", result.Result)
	assert.Contains(t, strings.ToLower(result.Result), "test confirmed")
}

func TestToolConversation(t *testing.T) {
	sess := newLiveSession(t)

	result := sess.Complete(context.Background(), "Use the calculate tool to compute 1234 * 5678 and reply with the number only.")
	require.False(t, result.Failed(), result.Error)
	assert.Contains(t, strings.ReplaceAll(result.Result, ",", ""), "7006652")

	var sawTool bool
	for _, m := range sess.History().Snapshot() {
		if m.Role == agentruntime.RoleTool {
			sawTool = true
			assert.Contains(t, m.Content, "Calculation result")
		}
	}
	assert.True(t, sawTool, "expected a tool round")
}

func TestStreamingConversation(t *testing.T) {
	sess := newLiveSession(t)

	stream := sess.Stream(context.Background(), "Count from 1 to 5 separated by spaces.")
	defer stream.Close()

	var text strings.Builder
	var terminal []agentruntime.Response
	for chunk := range stream.Chunks() {
		if chunk.Terminal() {
			terminal = append(terminal, chunk)
			continue
		}
		text.WriteString(chunk.Content)
	}
	require.Len(t, terminal, 1)
	assert.Equal(t, agentruntime.ResponseTypeEnd, terminal[0].Type)
	assert.Contains(t, text.String(), "3")

	history := sess.History().Snapshot()
	assert.Equal(t, agentruntime.AssistantMessage(text.String()), history[len(history)-1])
}
