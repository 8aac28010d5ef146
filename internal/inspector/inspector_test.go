package inspector_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/internal/inspector"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/mcpbridge"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chargeCall struct {
	event string
	count int
}

type fakePlatform struct {
	input    []byte
	inputErr error

	pushes   []any
	statuses []string
	charges  []chargeCall
}

func (p *fakePlatform) GetInput(ctx context.Context) ([]byte, error) {
	return p.input, p.inputErr
}

func (p *fakePlatform) PushData(ctx context.Context, items any) error {
	p.pushes = append(p.pushes, items)
	return nil
}

func (p *fakePlatform) SetStatusMessage(ctx context.Context, msg string) error {
	p.statuses = append(p.statuses, msg)
	return nil
}

func (p *fakePlatform) Charge(ctx context.Context, eventName string, count int) error {
	p.charges = append(p.charges, chargeCall{event: eventName, count: count})
	return nil
}

// fakeModel produces one report covering exactly the tools offered in the
// call options, passing all but the ones listed in failTools.
type fakeModel struct {
	failTools map[string]string
	rawOutput string

	inputTokens  int64
	outputTokens int64
}

func (m *fakeModel) GetName() string                    { return "fake-model" }
func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	content := m.rawOutput
	if content == "" {
		report := inspector.TestReport{AllTestsPassed: true}
		for _, tool := range opts.Tools {
			name := tool.Function.Name
			res := inspector.ToolTestResult{
				Name:   name,
				Passed: true,
				Detail: "responded correctly to a minimal probe",
			}
			if reason, ok := m.failTools[name]; ok {
				res.Passed = false
				res.Detail = reason
				report.AllTestsPassed = false
			}
			report.ToolsStatus = append(report.ToolsStatus, res)
		}
		js, err := json.Marshal(report)
		if err != nil {
			return nil, err
		}
		content = string(js)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    content,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  m.inputTokens,
					"OutputTokens": m.outputTokens,
					"TotalTokens":  m.inputTokens + m.outputTokens,
				},
			},
		},
	}, nil
}

type fakeFactory struct {
	model llms.Model
}

func (f *fakeFactory) DefaultModel() (llms.Model, error)               { return f.model, nil }
func (f *fakeFactory) ModelByType(string) (llms.Model, error)          { return f.model, nil }
func (f *fakeFactory) ModelByName(...string) (llms.Model, error)       { return f.model, nil }
func (f *fakeFactory) AssistantModel(string, ...string) (llms.Model, error) {
	return f.model, nil
}

func newTestConfig() *inspector.Config {
	cfg, err := inspector.LoadConfig("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func dialTestBridge(t *testing.T, tools map[string]string) func(ctx context.Context, p mcpbridge.Params) (*mcpbridge.Bridge, error) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "test"}, nil)
	for name, descr := range tools {
		server.AddTool(&mcp.Tool{
			Name:        name,
			Description: descr,
			InputSchema: map[string]any{"type": "object"},
		}, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "ok"}},
			}, nil
		})
	}

	return func(ctx context.Context, p mcpbridge.Params) (*mcpbridge.Bridge, error) {
		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		_, err := server.Connect(context.Background(), serverTransport, nil)
		if err != nil {
			return nil, err
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
		session, err := client.Connect(context.Background(), clientTransport, nil)
		if err != nil {
			return nil, err
		}
		return mcpbridge.NewFromSession(session), nil
	}
}

func TestRunMissingURL(t *testing.T) {
	for _, input := range []string{
		``,
		`{}`,
		`{"mcpUrl":""}`,
		`{"mcpUrl":null}`,
		`{"mcpUrl":"  "}`,
	} {
		platform := &fakePlatform{input: []byte(input)}
		ins := inspector.New(newTestConfig(), platform, &fakeFactory{model: &fakeModel{}})
		ins.Dial = func(ctx context.Context, p mcpbridge.Params) (*mcpbridge.Bridge, error) {
			t.Fatalf("dial must not be called for input %q", input)
			return nil, nil
		}

		err := ins.Run(context.Background())
		require.NoError(t, err, "input %q", input)
		require.Equal(t, []string{inspector.MissingURLStatus}, platform.statuses, "input %q", input)
		assert.Empty(t, platform.pushes, "input %q", input)
		assert.Empty(t, platform.charges, "input %q", input)
	}
}

func TestRunReportsEveryTool(t *testing.T) {
	platform := &fakePlatform{input: []byte(`{"mcpUrl":"https://example/mcp"}`)}
	model := &fakeModel{
		failTools:    map[string]string{"toolB": "rate limited after 3 retries"},
		inputTokens:  250,
		outputTokens: 99,
	}
	ins := inspector.New(newTestConfig(), platform, &fakeFactory{model: model})
	ins.Dial = dialTestBridge(t, map[string]string{
		"toolA": "first tool",
		"toolB": "second tool",
	})

	err := ins.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, platform.pushes, 1)
	records, ok := platform.pushes[0].([]inspector.ToolTestResult)
	require.True(t, ok)
	require.Len(t, records, 2)

	byName := map[string]inspector.ToolTestResult{}
	for _, rec := range records {
		byName[rec.Name] = rec
	}
	require.Contains(t, byName, "toolA")
	require.Contains(t, byName, "toolB")
	assert.True(t, byName["toolA"].Passed)
	assert.False(t, byName["toolB"].Passed)
	assert.Equal(t, "rate limited after 3 retries", byName["toolB"].Detail)

	require.Len(t, platform.charges, 2)
	assert.Equal(t, chargeCall{event: "input-tokens-100", count: 3}, platform.charges[0])
	assert.Equal(t, chargeCall{event: "output-tokens-100", count: 1}, platform.charges[1])
}

func TestRunLegacyOutput(t *testing.T) {
	platform := &fakePlatform{input: []byte(`{"mcpUrl":"https://example/mcp"}`)}
	cfg := newTestConfig()
	cfg.LegacyOutput = true
	ins := inspector.New(cfg, platform, &fakeFactory{model: &fakeModel{}})
	ins.Dial = dialTestBridge(t, map[string]string{"toolA": "first tool"})

	err := ins.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, platform.pushes, 1)
	reports, ok := platform.pushes[0].([]inspector.LegacyReport)
	require.True(t, ok)
	require.Len(t, reports, 1)
	assert.Equal(t, "https://example/mcp", reports[0].MCPURL)
	assert.True(t, reports[0].AllTestsPassed)
	require.Len(t, reports[0].ToolsStatus, 1)
	assert.Equal(t, "toolA", reports[0].ToolsStatus[0].Name)
}

func TestRunUnstructuredResult(t *testing.T) {
	platform := &fakePlatform{input: []byte(`{"mcpUrl":"https://example/mcp"}`)}
	model := &fakeModel{
		rawOutput:    "I could not produce the report <<<",
		inputTokens:  42,
		outputTokens: 7,
	}
	ins := inspector.New(newTestConfig(), platform, &fakeFactory{model: model})
	ins.Dial = dialTestBridge(t, map[string]string{"toolA": "first tool"})

	err := ins.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, platform.pushes)

	// usage is still charged on the degraded path
	require.Len(t, platform.charges, 2)
	assert.Equal(t, chargeCall{event: "input-tokens-100", count: 1}, platform.charges[0])
	assert.Equal(t, chargeCall{event: "output-tokens-100", count: 1}, platform.charges[1])
}

func TestRunBillingDisabled(t *testing.T) {
	platform := &fakePlatform{input: []byte(`{"mcpUrl":"https://example/mcp"}`)}
	cfg := newTestConfig()
	cfg.Billing.Disabled = true
	model := &fakeModel{inputTokens: 1000, outputTokens: 1000}
	ins := inspector.New(cfg, platform, &fakeFactory{model: model})
	ins.Dial = dialTestBridge(t, map[string]string{"toolA": "first tool"})

	err := ins.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, platform.charges)
}

func TestRunDialFailure(t *testing.T) {
	platform := &fakePlatform{input: []byte(`{"mcpUrl":"https://example/mcp"}`)}
	ins := inspector.New(newTestConfig(), platform, &fakeFactory{model: &fakeModel{}})
	ins.Dial = func(ctx context.Context, p mcpbridge.Params) (*mcpbridge.Bridge, error) {
		return nil, errors.New("connection refused")
	}

	err := ins.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, platform.pushes)
}
