package inspector

import (
	"github.com/effective-security/mcpinspect/pkg/llmutils"
)

// ToolTestResult is the outcome of probing one tool.
type ToolTestResult struct {
	Name   string `json:"name" jsonschema:"title=Name,description=The name of the tested tool."`
	Passed bool   `json:"passed" jsonschema:"title=Passed,description=Whether the tool worked correctly."`
	Detail string `json:"detail" jsonschema:"title=Detail,description=The positive scenario that was verified when the tool passed; the reason for the failure when it did not."`
}

// TestReport is the structured output of a test run.
type TestReport struct {
	ToolsStatus    []ToolTestResult `json:"toolsStatus" jsonschema:"title=ToolsStatus,description=One outcome per tested tool."`
	AllTestsPassed bool             `json:"allTestsPassed" jsonschema:"title=AllTestsPassed,description=True only when every tool passed."`
}

// GetContent implements the ContentProvider interface.
func (r TestReport) GetContent() string {
	return llmutils.ToJSON(r)
}

// AllPassed recomputes the aggregate verdict from the per-tool outcomes.
// An empty report is vacuously true.
func (r TestReport) AllPassed() bool {
	for _, t := range r.ToolsStatus {
		if !t.Passed {
			return false
		}
	}
	return true
}

// Tally counts the per-tool outcomes.
func (r TestReport) Tally() (total, passed, failed int) {
	total = len(r.ToolsStatus)
	for _, t := range r.ToolsStatus {
		if t.Passed {
			passed++
		} else {
			failed++
		}
	}
	return total, passed, failed
}

// LegacyReport is the earlier single-object output shape, kept as a
// compatibility mode.
type LegacyReport struct {
	MCPURL         string           `json:"mcpUrl"`
	AllTestsPassed bool             `json:"allTestsPassed"`
	ToolsStatus    []ToolTestResult `json:"toolsStatus"`
}
