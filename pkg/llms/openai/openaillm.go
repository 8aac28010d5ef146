package openai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/llms/openai/internal/openaiclient"
	"github.com/invopop/jsonschema"
	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = openaiclient.ErrEmptyResponse

// LLM is an OpenAI chat model.
type LLM struct {
	client   *openaiclient.Client
	provider llms.ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o, c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client:   c,
		provider: llms.ProviderType(o.provider),
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.client.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			text, err := textFromParts(mc)
			if err != nil {
				return nil, err
			}
			chatMsgs = append(chatMsgs, sdk.SystemMessage(text))
		case llms.RoleHuman, llms.RoleGeneric:
			text, err := textFromParts(mc)
			if err != nil {
				return nil, err
			}
			chatMsgs = append(chatMsgs, sdk.UserMessage(text))
		case llms.RoleAI:
			msg, err := assistantMessage(mc)
			if err != nil {
				return nil, err
			}
			chatMsgs = append(chatMsgs, msg)
		case llms.RoleTool:
			if len(mc.Parts) != 1 {
				return nil, errors.Errorf("expected exactly one part for role %v, got %v", mc.Role, len(mc.Parts))
			}
			p, ok := mc.Parts[0].(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			chatMsgs = append(chatMsgs, sdk.ToolMessage(p.Content, p.ToolCallID))
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}
	}

	req := &sdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(opts.Model),
		Messages:    chatMsgs,
		Temperature: param.NewOpt(opts.Temperature),
	}
	if opts.TopP > 0 {
		req.TopP = param.NewOpt(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}
	if opts.Seed > 0 {
		req.Seed = param.NewOpt(int64(opts.Seed))
	}
	if len(opts.StopWords) > 0 {
		req.Stop = sdk.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if choice, ok := opts.ToolChoice.(string); ok && choice != "" {
		req.ToolChoice = sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(choice)}
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}

	rf := opts.ResponseFormat
	if rf == nil {
		rf = o.client.ResponseFormat
	}
	if rf != nil {
		switch {
		case rf.Type == "json_schema" && rf.JSONSchema != nil:
			req.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   rf.JSONSchema.Name,
						Schema: rf.JSONSchema.Schema,
						Strict: param.NewOpt(rf.JSONSchema.Strict),
					},
				},
			}
		case rf.Type == "json_object":
			req.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		}
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:          c.Message.Content,
			ReasoningContent: reasoningContent(c.Message),
			StopReason:       c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":     result.Usage.PromptTokens,
				"OutputTokens":    result.Usage.CompletionTokens,
				"TotalTokens":     result.Usage.TotalTokens,
				"ReasoningTokens": result.Usage.CompletionTokensDetails.ReasoningTokens,
			},
		}

		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: string(tool.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
		// populate legacy single-function call field for backwards compatibility
		if len(choices[i].ToolCalls) > 0 {
			choices[i].FuncCall = choices[i].ToolCalls[0].FunctionCall
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func textFromParts(mc llms.Message) (string, error) {
	var sb strings.Builder
	for _, part := range mc.Parts {
		p, ok := part.(llms.TextContent)
		if !ok {
			return "", errors.Errorf("content part %T not supported for role %v", part, mc.Role)
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func assistantMessage(mc llms.Message) (sdk.ChatCompletionMessageParamUnion, error) {
	msg := sdk.ChatCompletionAssistantMessageParam{}
	var content strings.Builder
	for _, part := range mc.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			content.WriteString(p.Text)
		case llms.ToolCall:
			msg.ToolCalls = append(msg.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: p.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				},
			})
		default:
			return sdk.ChatCompletionMessageParamUnion{}, errors.Errorf("content part %T not supported", part)
		}
	}
	if content.Len() > 0 {
		msg.Content = sdk.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(content.String()),
		}
	}
	return sdk.ChatCompletionMessageParamUnion{OfAssistant: &msg}, nil
}

// toolFromTool converts an llms.Tool to the SDK function tool.
func toolFromTool(t llms.Tool) (sdk.ChatCompletionToolUnionParam, error) {
	if t.Type != "function" || t.Function == nil {
		return sdk.ChatCompletionToolUnionParam{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	fd := shared.FunctionDefinitionParam{
		Name:       t.Function.Name,
		Parameters: functionParameters(t.Function.Parameters),
	}
	if t.Function.Description != "" {
		fd.Description = param.NewOpt(t.Function.Description)
	}
	if t.Function.Strict {
		fd.Strict = param.NewOpt(true)
	}
	return sdk.ChatCompletionFunctionTool(fd), nil
}

// functionParameters flattens the reflected schema into the plain map the
// SDK expects, defaulting to a permissive object schema.
func functionParameters(s *jsonschema.Schema) shared.FunctionParameters {
	fallback := shared.FunctionParameters{"type": "object"}
	if s == nil {
		return fallback
	}
	js, err := json.Marshal(s)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(js, &m); err != nil {
		return fallback
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return shared.FunctionParameters(m)
}

// reasoningContent extracts reasoning_content emitted by thinking models;
// the field is not part of the SDK response type.
func reasoningContent(msg sdk.ChatCompletionMessage) string {
	raw := msg.RawJSON()
	if raw == "" {
		return ""
	}
	var parsed struct {
		ReasoningContent string `json:"reasoning_content"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}
	return parsed.ReasoningContent
}
