package prompts

import (
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/llms"
)

// FormatPrompter formats inputs into a prompt value.
type FormatPrompter interface {
	FormatPrompt(values map[string]any) (llms.PromptValue, error)
	GetInputVariables() []string
}

// MessageFormatter formats inputs into one or more chat messages.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// ChatPromptTemplate is a prompt template for chat messages.
type ChatPromptTemplate struct {
	// Messages is the list of the message formatters.
	Messages []MessageFormatter
}

var _ FormatPrompter = ChatPromptTemplate{}

// NewChatPromptTemplate creates a new chat prompt template from a list of
// message formatters.
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{
		Messages: messages,
	}
}

// FormatPrompt formats the messages into a chat prompt value.
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (llms.PromptValue, error) {
	result := make(ChatPromptValue, 0, len(p.Messages))
	for _, m := range p.Messages {
		msgs, err := m.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		result = append(result, msgs...)
	}
	return result, nil
}

// GetInputVariables returns the input variables of all messages.
func (p ChatPromptTemplate) GetInputVariables() []string {
	var vars []string
	for _, m := range p.Messages {
		vars = append(vars, m.GetInputVariables()...)
	}
	return vars
}

// MessagePromptTemplate renders a single templated chat message.
type MessagePromptTemplate struct {
	Role           llms.Role
	Template       string
	InputVariables []string
}

var _ MessageFormatter = MessagePromptTemplate{}

// NewSystemMessagePromptTemplate creates a system message prompt template.
func NewSystemMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleSystem,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// NewHumanMessagePromptTemplate creates a human message prompt template.
func NewHumanMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleHuman,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// NewAIMessagePromptTemplate creates an assistant message prompt template.
func NewAIMessagePromptTemplate(tmpl string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:           llms.RoleAI,
		Template:       tmpl,
		InputVariables: inputVariables,
	}
}

// FormatMessages renders the template with the given values.
// All declared input variables must be present.
func (p MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	for _, v := range p.InputVariables {
		if _, ok := values[v]; !ok {
			return nil, errors.Newf("missing input variable: %s", v)
		}
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse prompt template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, errors.Wrap(err, "failed to execute prompt template")
	}

	return []llms.Message{
		llms.MessageFromTextParts(p.Role, buf.String()),
	}, nil
}

// GetInputVariables returns the input variables of the message.
func (p MessagePromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}
