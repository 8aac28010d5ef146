package mcpbridge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/metricskey"
	"github.com/effective-security/mcpinspect/tools"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RemoteTool adapts a tool of the remote MCP server to the ITool interface.
type RemoteTool struct {
	bridge      *Bridge
	name        string
	description string
	inputSchema any
}

var _ tools.ITool = (*RemoteTool)(nil)

// Tools returns the remote server's tools adapted to ITool.
func (b *Bridge) Tools(ctx context.Context) ([]tools.ITool, error) {
	list, err := b.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	adapted := make([]tools.ITool, 0, len(list))
	for _, t := range list {
		adapted = append(adapted, &RemoteTool{
			bridge:      b,
			name:        t.Name,
			description: t.Description,
			inputSchema: schemaToMap(t.InputSchema),
		})
	}
	return adapted, nil
}

// schemaToMap converts the SDK's schema representation to a plain map so the
// rest of the stack can consume it without depending on the SDK's schema
// types.
func schemaToMap(s any) map[string]any {
	if s == nil {
		return nil
	}
	js, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(js, &m); err != nil {
		return nil
	}
	return m
}

// Name implements the ITool interface.
func (t *RemoteTool) Name() string {
	return t.name
}

// Description implements the ITool interface.
func (t *RemoteTool) Description() string {
	return t.description
}

// Parameters implements the ITool interface.
func (t *RemoteTool) Parameters() any {
	return t.inputSchema
}

// Call implements the ITool interface. The input is the JSON-encoded
// arguments produced by the model; the result content is flattened to text.
// A result flagged as a tool error is returned as a Go error so callers see
// remote failures the same way as transport failures.
func (t *RemoteTool) Call(ctx context.Context, input string) (string, error) {
	var args map[string]any
	if strings.TrimSpace(input) != "" {
		if err := ljson.Unmarshal([]byte(input), &args); err != nil {
			return "", errors.WithMessagef(err, "invalid arguments for tool %q", t.name)
		}
	}

	started := time.Now()
	res, err := t.bridge.CallTool(ctx, t.name, args)
	metricskey.PerfToolCall.MeasureSince(started, t.name)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		return "", err
	}

	text := FlattenContent(res.Content)
	if res.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		if text == "" {
			text = "tool returned an error"
		}
		return "", errors.Newf("tool %q failed: %s", t.name, text)
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, t.name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", t.name,
		"result_size", len(text),
	)
	return text, nil
}

// FlattenContent joins the textual parts of a tool result. Non-text parts
// are skipped.
func FlattenContent(content []mcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		tc, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(tc.Text)
	}
	return sb.String()
}
