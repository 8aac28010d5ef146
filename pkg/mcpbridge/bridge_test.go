package mcpbridge_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpinspect/pkg/mcpbridge"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsArgs(t *testing.T) {
	p := mcpbridge.Params{
		URL: "https://example/mcp",
	}
	assert.Equal(t, []string{"https://example/mcp"}, p.Args())

	p.Headers = map[string]string{
		"X-Custom":      "v",
		"Authorization": "Bearer X",
	}
	assert.Equal(t, []string{
		"https://example/mcp",
		"--header", "Authorization: Bearer X",
		"--header", "X-Custom: v",
	}, p.Args())
}

func TestDialRequiresURL(t *testing.T) {
	_, err := mcpbridge.Dial(context.Background(), mcpbridge.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL is required")
}

func TestFlattenContent(t *testing.T) {
	assert.Equal(t, "", mcpbridge.FlattenContent(nil))
	assert.Equal(t, "one", mcpbridge.FlattenContent([]mcp.Content{
		&mcp.TextContent{Text: "one"},
	}))
	assert.Equal(t, "one\ntwo", mcpbridge.FlattenContent([]mcp.Content{
		&mcp.TextContent{Text: "one"},
		&mcp.TextContent{Text: "two"},
	}))
}

func TestBridgeTools(t *testing.T) {
	bridge, cleanup := newTestBridge(t)
	defer cleanup()

	list, err := bridge.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "echo", list[0].Name())
	assert.Equal(t, "echoes text back", list[0].Description())
	assert.Equal(t, "fail", list[1].Name())

	params, ok := list[0].Parameters().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}

func TestRemoteToolCall(t *testing.T) {
	bridge, cleanup := newTestBridge(t)
	defer cleanup()

	ctx := context.Background()
	list, err := bridge.Tools(ctx)
	require.NoError(t, err)
	byName := map[string]int{}
	for i, tool := range list {
		byName[tool.Name()] = i
	}

	res, err := list[byName["echo"]].Call(ctx, `{"text":"ping"}`)
	require.NoError(t, err)
	assert.Equal(t, "ping", res)

	_, err = list[byName["fail"]].Call(ctx, `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "fail" failed`)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = list[byName["echo"]].Call(ctx, `not json at all {{{`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
}

func newTestBridge(t *testing.T) (*mcpbridge.Bridge, func()) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "test"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "echoes text back",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		text, _ := args["text"].(string)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	})
	server.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "always fails",
		InputSchema: map[string]any{"type": "object"},
	}, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "rate limited"}},
		}, nil
	})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	clientSession, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)

	bridge := mcpbridge.NewFromSession(clientSession)
	cleanup := func() {
		_ = bridge.Close()
		_ = serverSession.Close()
	}
	return bridge, cleanup
}
