package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyModel answers every call with "re: <last message>".
type replyModel struct{}

func (replyModel) Name() string { return "reply" }

func (replyModel) Invoke(ctx context.Context, req agentruntime.ModelRequest) (*agentruntime.ModelResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &agentruntime.ModelResponse{Text: "re: " + last.Content}, nil
}

func (m replyModel) Stream(ctx context.Context, req agentruntime.ModelRequest) (agentruntime.ModelStream, error) {
	resp, _ := m.Invoke(ctx, req)
	return &oneShot{text: resp.Text}, nil
}

type oneShot struct {
	text string
	done bool
}

func (s *oneShot) Next() (agentruntime.ModelEvent, error) {
	if s.done {
		return agentruntime.ModelEvent{}, io.EOF
	}
	s.done = true
	return agentruntime.TextDelta(s.text), nil
}

func (s *oneShot) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Tools.Web = false
	cfg.Log.File = ""
	cfg.Sandbox.Enabled = true
	cfg.Sandbox.Root = t.TempDir()
	return cfg
}

func TestRunVersionAndUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, nil, &stdout, &stderr))
	assert.Equal(t, "agentruntime "+agentruntime.Version+"\n", stdout.String())

	assert.Error(t, run(context.Background(), nil, nil, &stdout, &stderr))
	assert.ErrorContains(t, run(context.Background(), []string{"deploy"}, nil, &stdout, &stderr), "deploy")
	assert.Contains(t, stderr.String(), "Commands:")
}

func TestOptionsApply(t *testing.T) {
	var opts options
	fs := newFlagSet("serve", &opts, io.Discard)
	require.NoError(t, fs.Parse([]string{"--port", "9001", "-m", "gpt-4o", "--max-rounds", "4", "--sandbox", "/tmp/sb"}))

	cfg := config.Default()
	require.NoError(t, opts.apply(cfg))
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 4, cfg.Agent.MaxRounds)
	assert.True(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "/tmp/sb", cfg.Sandbox.Root)

	opts = options{maxRounds: -1}
	assert.Error(t, opts.apply(config.Default()))
}

func TestNewRuntime(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Sandbox.Root, "notes.txt"), []byte("hi"), 0o644))
	cfg.Storage = config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "journal.db")}

	rt, err := newRuntime(context.Background(), cfg, replyModel{})
	require.NoError(t, err)
	defer rt.Close()

	names := rt.registry.Names()
	assert.Contains(t, names, "calculate")
	assert.Contains(t, names, "run_python_code")
	assert.NotContains(t, names, "fetch_url")

	prompt := rt.pod.Agent().Prompt()
	assert.Contains(t, prompt, "- get_weather:")
	assert.Contains(t, prompt, "notes.txt")
	assert.Contains(t, prompt, cfg.Sandbox.Root)
	assert.Contains(t, prompt, "<SessionDetails>\nmodel: reply\nservice: agentruntime\n</SessionDetails>")
}

func TestNewRuntimeErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = config.StorageConfig{Driver: "bogus"}
	rt, err := newRuntime(context.Background(), cfg, replyModel{})
	assert.ErrorContains(t, err, "bogus")
	assert.Nil(t, rt)

	cfg = testConfig(t)
	cfg.Model.Provider = "bard"
	_, err = newRuntime(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "bard")

	cfg = testConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Sandbox.Root = filepath.Join(file, "sub")
	_, err = newRuntime(context.Background(), cfg, replyModel{})
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	cfg := testConfig(t)
	rt, err := newRuntime(context.Background(), cfg, replyModel{})
	require.NoError(t, err)
	defer rt.Close()

	in := strings.NewReader("hello\n/history\n/reset\nagain\n/exit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chat(context.Background(), rt.pod, in, &out, true))

	text := out.String()
	assert.Contains(t, text, "re: hello")
	assert.Contains(t, text, "user: hello")
	assert.Contains(t, text, "assistant: re: hello")
	assert.Contains(t, text, "New session")
	assert.Contains(t, text, "re: again")
	assert.NotContains(t, text, "ignored")
	assert.Len(t, rt.pod.Sessions(), 1)
}

func TestChatNonStreaming(t *testing.T) {
	cfg := testConfig(t)
	rt, err := newRuntime(context.Background(), cfg, replyModel{})
	require.NoError(t, err)
	defer rt.Close()

	var out bytes.Buffer
	require.NoError(t, chat(context.Background(), rt.pod, strings.NewReader("ping\n"), &out, false))
	assert.Contains(t, out.String(), "re: ping")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "assistant: calls calculate, get_weather", describe(agentruntime.AssistantToolCallMessage("", []agentruntime.ToolCallRequest{
		{ID: "1", Name: "calculate"}, {ID: "2", Name: "get_weather"},
	})))
	assert.Equal(t, "tool[1]: 4", describe(agentruntime.ToolMessage("4", "1")))
}
