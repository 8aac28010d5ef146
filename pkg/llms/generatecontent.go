package llms

import (
	"strings"
)

// Role is the role of a chat message.
type Role string

const (
	// RoleAI is a message sent by an AI.
	RoleAI Role = "ai"
	// RoleGeneric is a message sent by a generic user.
	RoleGeneric Role = "generic"
	// RoleHuman is a message sent by a human.
	RoleHuman Role = "human"
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleTool is a message sent by a tool.
	RoleTool Role = "tool"
)

// Message is a message in a chat sequence,
// with a Role and a sequence of content parts.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// TextParts returns all text parts joined.
func (m *Message) TextParts() string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if tc, ok := part.(TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// ContentPart is an interface all parts of content have to implement.
type ContentPart interface {
	isPart()
}

// TextContent is content with some text.
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isPart() {}

func (tc TextContent) String() string {
	return tc.Text
}

// ToolCall is a call to a tool,
// as requested by the model.
type ToolCall struct {
	// ID is the unique ID of the tool call.
	ID string `json:"id"`
	// Type is the type of the tool call. Typically, this would be "function".
	Type string `json:"type"`
	// FunctionCall is the function call to be executed.
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

func (ToolCall) isPart() {}

// FunctionCall is the name and arguments of a function call.
type FunctionCall struct {
	// Name is the name of the function to be called.
	Name string `json:"name"`
	// Arguments is the set of arguments to pass to the function,
	// encoded as JSON.
	Arguments string `json:"arguments"`
}

// ToolCallResponse is the response returned by a tool call.
type ToolCallResponse struct {
	// ToolCallID is the ID of the tool call this response is for.
	ToolCallID string `json:"tool_call_id"`
	// Name is the name of the tool that was called.
	Name string `json:"name"`
	// Content is the textual content of the response.
	Content string `json:"content"`
}

func (ToolCallResponse) isPart() {}

// ContentResponse is the response returned by a GenerateContent call.
// It can potentially return multiple content choices.
type ContentResponse struct {
	Choices []*ContentChoice `json:"choices"`
}

// ContentChoice is one of the response choices returned by GenerateContent.
type ContentChoice struct {
	// Content is the textual content of a response.
	Content string `json:"content"`
	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason"`
	// GenerationInfo is arbitrary information the model adds to the response,
	// such as token usage.
	GenerationInfo map[string]any `json:"generation_info"`
	// FuncCall is non-nil when the model asks to invoke a function/tool.
	FuncCall *FunctionCall `json:"func_call,omitempty"`
	// ToolCalls is a list of tool calls the model asks to invoke.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ReasoningContent is the reasoning of a response.
	ReasoningContent string `json:"reasoning_content"`
}

// MessageFromTextParts returns a Message with the role and text parts.
func MessageFromTextParts(role Role, parts ...string) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(parts)),
	}
	for _, part := range parts {
		result.Parts = append(result.Parts, TextContent{Text: part})
	}
	return result
}

// MessageFromParts returns a Message with the role and parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{
		Role:  role,
		Parts: parts,
	}
}

// MessageFromToolCalls returns a Message with the role and tool calls.
func MessageFromToolCalls(role Role, toolCalls ...ToolCall) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(toolCalls)),
	}
	for _, tc := range toolCalls {
		result.Parts = append(result.Parts, tc)
	}
	return result
}

// MessageFromToolResponse returns a Message with the role and tool response.
func MessageFromToolResponse(role Role, resp ToolCallResponse) Message {
	return Message{
		Role:  role,
		Parts: []ContentPart{resp},
	}
}
