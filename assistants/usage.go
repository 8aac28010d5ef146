package assistants

import (
	"context"
	"sync"

	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/llmutils"
)

// Usage is the token tally of one or more LLM calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	LLMCalls     int64
}

// UsageRecorder is a callback that tallies token usage across all LLM calls
// of a run. It is safe for concurrent use.
type UsageRecorder struct {
	NoopCallback

	mu    sync.Mutex
	usage Usage
}

func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{}
}

var _ Callback = (*UsageRecorder)(nil)

func (r *UsageRecorder) OnAssistantLLMCallEnd(ctx context.Context, assistant IAssistant, model llms.Model, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.InputTokens += in
	r.usage.OutputTokens += out
	r.usage.TotalTokens += total
	r.usage.LLMCalls++
}

// Usage returns the current tally.
func (r *UsageRecorder) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Reset clears the tally.
func (r *UsageRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = Usage{}
}
