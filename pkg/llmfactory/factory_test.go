package llmfactory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/mcpinspect/pkg/llmfactory"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	name string
}

func (m *stubModel) GetName() string                    { return m.name }
func (m *stubModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func withStubNewLLM(t *testing.T) *[]string {
	t.Helper()

	var created []string
	orig := llmfactory.NewLLM
	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		name := cfg.FindModel(preferredModels...)
		created = append(created, name)
		return &stubModel{name: name}, nil
	}
	t.Cleanup(func() { llmfactory.NewLLM = orig })
	return &created
}

func newTestConfig() *llmfactory.Config {
	return &llmfactory.Config{
		Providers: []*llmfactory.ProviderConfig{
			{
				Name:            "openai",
				Token:           "tkn",
				DefaultModel:    "gpt-4o",
				AvailableModels: []string{"gpt-4o", "gpt-4o-mini"},
				OpenAI: llmfactory.OpenAIConfig{
					APIType: "OPENAI",
				},
			},
			{
				Name:            "anthropic",
				Token:           "tkn2",
				DefaultModel:    "claude-sonnet",
				AvailableModels: []string{"claude-sonnet"},
				OpenAI: llmfactory.OpenAIConfig{
					APIType: "ANTHROPIC",
				},
			},
		},
		DefaultProvider: "openai",
		AssistantModels: map[string][]string{
			"MCP Tester": {"gpt-4o-mini"},
		},
	}
}

func TestDefaultModel(t *testing.T) {
	_ = withStubNewLLM(t)

	f := llmfactory.New(newTestConfig())
	model, err := f.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.GetName())
}

func TestDefaultModelNoProviders(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers configured")
}

func TestModelByName(t *testing.T) {
	created := withStubNewLLM(t)

	f := llmfactory.New(newTestConfig())
	model, err := f.ModelByName("claude-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", model.GetName())

	// cached on second call
	model2, err := f.ModelByName("claude-sonnet")
	require.NoError(t, err)
	assert.Same(t, model, model2)
	assert.Len(t, *created, 1)

	// unknown model falls back to the default provider
	model3, err := f.ModelByName("unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model3.GetName())
}

func TestModelByType(t *testing.T) {
	_ = withStubNewLLM(t)

	f := llmfactory.New(newTestConfig())
	model, err := f.ModelByType("ANTHROPIC")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", model.GetName())

	_, err = f.ModelByType("BEDROCK")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider not found")
}

func TestAssistantModel(t *testing.T) {
	_ = withStubNewLLM(t)

	f := llmfactory.New(newTestConfig())
	model, err := f.AssistantModel("MCP Tester")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.GetName())

	// no mapping falls back to the default provider
	model, err = f.AssistantModel("Unknown")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model.GetName())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "llm.yaml")
	err := os.WriteFile(file, []byte(`
providers:
  - name: openai
    token: tkn
    default_model: gpt-4o
    available_models:
      - gpt-4o
    open_ai:
      api_type: OPENAI
default_provider: openai
`), 0o600)
	require.NoError(t, err)

	cfg, err := llmfactory.LoadConfig(file)
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, "gpt-4o", cfg.Providers[0].DefaultModel)
	assert.Equal(t, "OPENAI", cfg.Providers[0].OpenAI.APIType)

	empty, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, empty.Providers)
}

func TestFindModel(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		DefaultModel:    "gpt-4o",
		AvailableModels: []string{"gpt-4o", "gpt-4o-mini"},
	}
	assert.Equal(t, "gpt-4o-mini", cfg.FindModel("gpt-4o-mini"))
	assert.Equal(t, "gpt-4o", cfg.FindModel("unknown"))
	assert.Equal(t, "gpt-4o", cfg.FindModel())
}
