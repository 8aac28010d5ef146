package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/llms/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMissingToken(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := openai.New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestGenerateContent(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [
				{
					"index": 0,
					"message": {"role": "assistant", "content": "hello there"},
					"finish_reason": "stop"
				}
			],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer ts.Close()

	llm, err := openai.New(
		openai.WithToken("tkn"),
		openai.WithModel("gpt-4o"),
		openai.WithBaseURL(ts.URL),
	)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", llm.GetName())
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.Message{
			llms.MessageFromTextParts(llms.RoleSystem, "you are terse"),
			llms.MessageFromTextParts(llms.RoleHuman, "say hello"),
		},
		llms.WithTemperature(0),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)

	choice := resp.Choices[0]
	assert.Equal(t, "hello there", choice.Content)
	assert.Equal(t, "stop", choice.StopReason)
	assert.Equal(t, int64(12), choice.GenerationInfo["InputTokens"])
	assert.Equal(t, int64(4), choice.GenerationInfo["OutputTokens"])
	assert.Equal(t, int64(16), choice.GenerationInfo["TotalTokens"])

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer tkn", gotAuth)
	assert.Equal(t, "gpt-4o", gotReq["model"])
	msgs, ok := gotReq["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first, ok := msgs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "system", first["role"])
}

func TestGenerateContentToolCalls(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2",
			"model": "gpt-4o",
			"choices": [
				{
					"index": 0,
					"message": {
						"role": "assistant",
						"content": "",
						"tool_calls": [
							{
								"id": "call_1",
								"type": "function",
								"function": {"name": "echo", "arguments": "{\"text\":\"hi\"}"}
							}
						]
					},
					"finish_reason": "tool_calls"
				}
			],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`))
	}))
	defer ts.Close()

	llm, err := openai.New(
		openai.WithToken("tkn"),
		openai.WithModel("gpt-4o"),
		openai.WithBaseURL(ts.URL),
	)
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "echo hi"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)

	choice := resp.Choices[0]
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "call_1", choice.ToolCalls[0].ID)
	assert.Equal(t, "echo", choice.ToolCalls[0].FunctionCall.Name)
	assert.Equal(t, `{"text":"hi"}`, choice.ToolCalls[0].FunctionCall.Arguments)
}

func TestGenerateContentError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer ts.Close()

	llm, err := openai.New(
		openai.WithToken("bad"),
		openai.WithModel("gpt-4o"),
		openai.WithBaseURL(ts.URL),
	)
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hi"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}
