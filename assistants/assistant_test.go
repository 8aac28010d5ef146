package assistants_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/assistants"
	"github.com/effective-security/mcpinspect/chatmodel"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/llmutils"
	"github.com/effective-security/mcpinspect/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Answer string `json:"answer"`
	Passed bool   `json:"passed"`
}

func (v verdict) GetContent() string {
	return llmutils.ToJSON(v)
}

// scriptedModel returns the queued responses in order.
type scriptedModel struct {
	provider  llms.ProviderType
	responses []*llms.ContentResponse
	calls     [][]llms.Message
	err       error
}

func (m *scriptedModel) GetName() string { return "scripted" }

func (m *scriptedModel) GetProviderType() llms.ProviderType {
	if m.provider == "" {
		return llms.ProviderOpenAI
	}
	return m.provider
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

type echoTool struct {
	calls []string
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes text back" }
func (t *echoTool) Parameters() any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
	}
}

func (t *echoTool) Call(ctx context.Context, input string) (string, error) {
	t.calls = append(t.calls, input)
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", errors.WithStack(chatmodel.ErrFailedUnmarshalInput)
	}
	return args.Text, nil
}

func textResponse(content string, inTokens, outTokens int64) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    content,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  inTokens,
					"OutputTokens": outTokens,
					"TotalTokens":  inTokens + outTokens,
				},
			},
		},
	}
}

func toolCallResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls: []llms.ToolCall{
					{
						ID:   id,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      name,
							Arguments: args,
						},
					},
				},
			},
		},
	}
}

func newPrompt() prompts.ChatPromptTemplate {
	return prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate("You answer questions about {{.topic}}.", []string{"topic"}),
	})
}

func TestAssistantRun(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			textResponse(`{"answer":"42","passed":true}`, 100, 10),
		},
	}
	ag := assistants.NewAssistant[verdict](model, newPrompt()).WithName("Tester")

	var out verdict
	resp, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "what is the answer?",
		PromptInputs: map[string]any{"topic": "numbers"},
	}, &out)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "42", out.Answer)
	assert.True(t, out.Passed)

	require.Len(t, model.calls, 1)
	sent := model.calls[0]
	require.NotEmpty(t, sent)
	assert.Equal(t, llms.RoleSystem, sent[0].Role)
}

func TestAssistantToolCalls(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "echo", `{"text":"ping"}`),
			textResponse(`{"answer":"ping","passed":true}`, 50, 5),
		},
	}
	tool := &echoTool{}
	ag := assistants.NewAssistant[verdict](model, newPrompt()).
		WithName("Tester").
		WithTools(tool)

	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "echo ping back",
		PromptInputs: map[string]any{"topic": "echoes"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ping", out.Answer)
	require.Len(t, tool.calls, 1)
	assert.Equal(t, `{"text":"ping"}`, tool.calls[0])

	// second LLM call carries the tool call and its response
	require.Len(t, model.calls, 2)
	last := model.calls[1]
	var sawToolResponse bool
	for _, msg := range last {
		if msg.Role == llms.RoleTool {
			sawToolResponse = true
		}
	}
	assert.True(t, sawToolResponse)
}

func TestAssistantParseError(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			textResponse("not a json verdict <<<", 10, 2),
		},
	}
	cb := assistants.NewUsageRecorder()
	ag := assistants.NewAssistant[verdict](model, newPrompt(),
		assistants.WithCallback(cb),
	)

	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "give a verdict",
		PromptInputs: map[string]any{"topic": "anything"},
	}, &out)
	require.Error(t, err)

	// usage is still recorded for the failed parse
	usage := cb.Usage()
	assert.Equal(t, int64(10), usage.InputTokens)
	assert.Equal(t, int64(2), usage.OutputTokens)
	assert.Equal(t, int64(1), usage.LLMCalls)
}

func TestAssistantLLMError(t *testing.T) {
	model := &scriptedModel{
		err: errors.New("backend unavailable"),
	}
	ag := assistants.NewAssistant[verdict](model, newPrompt())

	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "hello",
		PromptInputs: map[string]any{"topic": "anything"},
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestUsageRecorderAccumulates(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "echo", `{"text":"a"}`),
			textResponse(`{"answer":"a","passed":true}`, 30, 3),
		},
	}
	cb := assistants.NewUsageRecorder()
	ag := assistants.NewAssistant[verdict](model, newPrompt(),
		assistants.WithCallback(cb),
	).WithTools(&echoTool{})

	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "echo a",
		PromptInputs: map[string]any{"topic": "echoes"},
	}, &out)
	require.NoError(t, err)

	usage := cb.Usage()
	assert.Equal(t, int64(2), usage.LLMCalls)
	assert.Equal(t, int64(30), usage.InputTokens)
	assert.Equal(t, int64(3), usage.OutputTokens)

	cb.Reset()
	assert.Equal(t, assistants.Usage{}, cb.Usage())
}

func TestAssistantGetDescriptions(t *testing.T) {
	model := &scriptedModel{}
	ag1 := assistants.NewAssistant[verdict](model, newPrompt()).
		WithName("Tester").
		WithDescription("tests MCP tools")
	ag2 := assistants.NewAssistant[verdict](model, newPrompt()).
		WithName("Reporter").
		WithDescription("writes reports")

	descr := assistants.GetDescriptions(ag1, ag2)
	assert.Contains(t, descr, "Tester")
	assert.Contains(t, descr, "writes reports")
}

// unionSchemaTool advertises a parameter whose type is a JSON Schema
// union, as remote MCP servers are allowed to do.
type unionSchemaTool struct {
	calls []string
}

func (t *unionSchemaTool) Name() string        { return "search" }
func (t *unionSchemaTool) Description() string { return "searches with an optional query" }
func (t *unionSchemaTool) Parameters() any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": []any{"string", "null"}},
		},
	}
}

func (t *unionSchemaTool) Call(ctx context.Context, input string) (string, error) {
	t.calls = append(t.calls, input)
	return "no results", nil
}

func TestAssistantUnionSchemaTool(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "search", `{"query":"ping"}`),
			textResponse(`{"answer":"no results","passed":true}`, 40, 4),
		},
	}
	tool := &unionSchemaTool{}

	var ag *assistants.Assistant[verdict]
	require.NotPanics(t, func() {
		ag = assistants.NewAssistant[verdict](model, newPrompt()).
			WithName("Tester").
			WithTools(tool)
	})

	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "search for ping",
		PromptInputs: map[string]any{"topic": "search"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "no results", out.Answer)
	require.Len(t, tool.calls, 1)
	assert.Equal(t, `{"query":"ping"}`, tool.calls[0])
}

// chatIDTool records the chat ID visible in the tool call context.
type chatIDTool struct {
	chatIDs []string
}

func (t *chatIDTool) Name() string        { return "whoami" }
func (t *chatIDTool) Description() string { return "reports the current chat" }
func (t *chatIDTool) Parameters() any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *chatIDTool) Call(ctx context.Context, input string) (string, error) {
	t.chatIDs = append(t.chatIDs, chatmodel.GetChatID(ctx))
	return "ok", nil
}

func TestAssistantChatContext(t *testing.T) {
	model := &scriptedModel{
		responses: []*llms.ContentResponse{
			toolCallResponse("call_1", "whoami", `{}`),
			textResponse(`{"answer":"ok","passed":true}`, 20, 2),
		},
	}
	tool := &chatIDTool{}
	ag := assistants.NewAssistant[verdict](model, newPrompt()).
		WithName("Tester").
		WithTools(tool)

	// without an ambient chat context the run installs its own
	var out verdict
	_, err := ag.Run(context.Background(), &assistants.CallInput{
		Input:        "who am I?",
		PromptInputs: map[string]any{"topic": "identity"},
	}, &out)
	require.NoError(t, err)
	require.Len(t, tool.chatIDs, 1)
	assert.NotEmpty(t, tool.chatIDs[0])

	// an ambient chat context is preserved through the run
	model.responses = []*llms.ContentResponse{
		toolCallResponse("call_2", "whoami", `{}`),
		textResponse(`{"answer":"ok","passed":true}`, 20, 2),
	}
	chatCtx := chatmodel.NewChatContext("chat-123", nil)
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	_, err = ag.Run(ctx, &assistants.CallInput{
		Input:        "who am I now?",
		PromptInputs: map[string]any{"topic": "identity"},
	}, &out)
	require.NoError(t, err)
	require.Len(t, tool.chatIDs, 2)
	assert.Equal(t, "chat-123", tool.chatIDs[1])
}
