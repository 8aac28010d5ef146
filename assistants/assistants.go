// Package assistants provides core logic for LLM agents, including assistant
// orchestration, tool integration, and callback handling.
package assistants

import (
	"context"
	"fmt"
	"strings"

	"github.com/effective-security/mcpinspect/chatmodel"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "assistants")

// IAssistant is the interface of a chat assistant.
type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant, to be used in the prompt of other Assistants or LLMs.
	// Should not exceed LLM model limit.
	Description() string
	// FormatPrompt formats the system prompt with the given values.
	FormatPrompt(values map[string]any) (llms.PromptValue, error)
	GetPromptInputVariables() []string

	Call(ctx context.Context, input *CallInput) (*llms.ContentResponse, error)
}

// TypeableAssistant is an assistant with a typed structured output.
type TypeableAssistant[O chatmodel.ContentProvider] interface {
	IAssistant
	// Run executes the assistant with the given input,
	// optionally parsing the structured output.
	Run(ctx context.Context, input *CallInput, optionalOutputType *O) (*llms.ContentResponse, error)
}

// CallInput is the input of an assistant call.
type CallInput struct {
	// Input is the user input text.
	Input string
	// PromptInputs are values for the system prompt template.
	PromptInputs map[string]any
	// Messages are extra messages appended after the user input.
	Messages []llms.Message
	// Options are per call configuration overrides.
	Options []Option
}

// Callback receives assistant lifecycle events.
type Callback interface {
	OnAssistantStart(ctx context.Context, assistant IAssistant, input string)
	OnAssistantEnd(ctx context.Context, assistant IAssistant, input string, resp *llms.ContentResponse)
	OnAssistantError(ctx context.Context, assistant IAssistant, input string, err error)
	OnAssistantLLMCallStart(ctx context.Context, assistant IAssistant, model llms.Model, messages []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, assistant IAssistant, model llms.Model, resp *llms.ContentResponse)
	OnAssistantLLMParseError(ctx context.Context, assistant IAssistant, input string, result string, err error)
	OnToolStart(ctx context.Context, tool tools.ITool, assistant string, input string)
	OnToolEnd(ctx context.Context, tool tools.ITool, assistant string, input string, output string)
	OnToolError(ctx context.Context, tool tools.ITool, assistant string, input string, err error)
	OnToolNotFound(ctx context.Context, assistant IAssistant, tool string)
}

// GetDescriptions renders the assistant list for use in prompts.
func GetDescriptions(list ...IAssistant) string {
	var ts strings.Builder
	for _, item := range list {
		ts.WriteString(fmt.Sprintf("- `%s`: %s\n", item.Name(), item.Description()))
	}
	return ts.String()
}

// MapAssistants maps assistants by name.
func MapAssistants(list ...IAssistant) map[string]IAssistant {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]IAssistant, len(list))
	for _, a := range list {
		m[a.Name()] = a
	}
	return m
}
