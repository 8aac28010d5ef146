package inspector

import (
	"github.com/effective-security/mcpinspect/pkg/prompts"
)

const systemPromptTemplate = `You are an expert MCP server tester.
You are connected to the MCP server at {{.url}} and its tools are available to you.

Test every available tool by following this protocol:
1. Call each tool exactly once with minimal, valid arguments. Only call tools from the available set.
2. Judge from the tool's response whether it works correctly.
3. If a tool call is rate limited, retry it up to 3 times before declaring the tool failed.
4. If a tool plausibly depends on the side effects of another tool, test the dependency first.
5. For each tool, record its name, whether it passed, and a detail: the positive scenario you verified when it passed, or the reason for the failure when it did not.
6. Report allTestsPassed as true only when every tool passed.

Report an outcome for every available tool, no more and no less.`

const userPrompt = `Test all tools of the MCP server and report the results.`

// NewTestPrompt returns the testing protocol prompt for the given server URL.
func NewTestPrompt() prompts.ChatPromptTemplate {
	return prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(systemPromptTemplate, []string{"url"}),
	})
}
