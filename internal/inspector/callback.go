package inspector

import (
	"context"
	"sync"

	"github.com/effective-security/mcpinspect/assistants"
)

// runCallback tallies token usage and captures the raw LLM output when
// structured parsing fails, so the run can degrade to raw logging.
type runCallback struct {
	*assistants.UsageRecorder

	mu          sync.Mutex
	rawOnFail   string
	parseFailed bool
}

var _ assistants.Callback = (*runCallback)(nil)

func newRunCallback() *runCallback {
	return &runCallback{
		UsageRecorder: assistants.NewUsageRecorder(),
	}
}

func (c *runCallback) OnAssistantLLMParseError(ctx context.Context, assistant assistants.IAssistant, input string, result string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawOnFail = result
	c.parseFailed = true
}

// RawParseFailure reports whether structured parsing failed, and the raw
// result when it did.
func (c *runCallback) RawParseFailure() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawOnFail, c.parseFailed
}
