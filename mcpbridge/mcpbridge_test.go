package mcpbridge

import (
	"context"
	"errors"
	"testing"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubTool struct {
	name string
	fn   func(args map[string]any) (string, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return s.fn(args)
}

func connectLocal(t *testing.T, registry *agentruntime.ToolRegistry) *Remote {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := NewServer(registry).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	remote, err := ConnectTransport(ctx, "local", clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = remote.Close()
		_ = ss.Wait()
	})
	return remote
}

func TestRoundTripThroughMCP(t *testing.T) {
	registry, err := agentruntime.NewToolRegistry(
		tools.NewWeather(),
		tools.NewCalculator(),
		&stubTool{name: "flaky", fn: func(map[string]any) (string, error) {
			return "", agentruntime.NewRetryableError(errors.New("bad input"))
		}},
		&stubTool{name: "boom", fn: func(map[string]any) (string, error) {
			panic("kaboom")
		}},
	)
	require.NoError(t, err)

	remote := connectLocal(t, registry)
	assert.Equal(t, "local", remote.Name())

	remoteTools, err := remote.Tools(context.Background())
	require.NoError(t, err)
	remoteRegistry, err := agentruntime.NewToolRegistry(remoteTools...)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"get_weather", "calculate", "flaky", "boom"}, remoteRegistry.Names())

	weather, ok := remoteRegistry.Lookup("get_weather")
	require.True(t, ok)
	assert.Equal(t, "Get weather for a specified city", weather.Description())
	assert.Equal(t, "object", weather.Parameters()["type"])
	assert.Contains(t, weather.Parameters()["properties"], "city")

	out, err := weather.Execute(context.Background(), map[string]any{"city": "Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "Sunny, 20°C, pleasant weather", out)

	calc, _ := remoteRegistry.Lookup("calculate")
	out, err = calc.Execute(context.Background(), map[string]any{"expression": "6 * 7"})
	require.NoError(t, err)
	assert.Equal(t, "Calculation result: 6 * 7 = 42", out)

	flaky, _ := remoteRegistry.Lookup("flaky")
	_, err = flaky.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "Error: bad input.\nRetry", err.Error())

	boom, _ := remoteRegistry.Lookup("boom")
	_, err = boom.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "Error: tool boom panicked: kaboom", err.Error())
}

func TestServerConfigTransport(t *testing.T) {
	ctx := context.Background()

	tr, err := ServerConfig{Name: "fs", Command: "mcp-server-filesystem", Args: []string{"/tmp"}}.transport(ctx)
	require.NoError(t, err)
	cmd, ok := tr.(*mcp.CommandTransport)
	require.True(t, ok)
	assert.Equal(t, []string{"mcp-server-filesystem", "/tmp"}, cmd.Command.Args)

	tr, err = ServerConfig{Name: "remote", URL: "https://mcp.example.com/mcp"}.transport(ctx)
	require.NoError(t, err)
	assert.IsType(t, &mcp.StreamableClientTransport{}, tr)

	for _, bad := range []ServerConfig{
		{Name: "none"},
		{Name: "both", Command: "x", URL: "http://y"},
		{Name: "scheme", URL: "ftp://y"},
	} {
		_, err := bad.transport(ctx)
		assert.Error(t, err, bad.Name)
	}
}

func TestNormalizeSchema(t *testing.T) {
	out, err := normalizeSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, out)

	out, err = normalizeSchema(map[string]any{"properties": map[string]any{"q": map[string]any{"type": "string"}}})
	require.NoError(t, err)
	assert.Equal(t, "object", out["type"])
}

func TestContentText(t *testing.T) {
	text := contentText([]mcp.Content{
		&mcp.TextContent{Text: "line one"},
		&mcp.ImageContent{MIMEType: "image/png", Data: []byte{1}},
		&mcp.TextContent{Text: "line two"},
	})
	assert.Equal(t, "line one\n[image image/png]\nline two", text)
}
