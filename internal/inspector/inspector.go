// Package inspector runs one test pass against a remote MCP server: it reads
// the run input, bridges to the server, lets an LLM agent probe every tool,
// persists the per-tool outcomes and charges token usage.
package inspector

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/assistants"
	"github.com/effective-security/mcpinspect/chatmodel"
	"github.com/effective-security/mcpinspect/pkg/apify"
	"github.com/effective-security/mcpinspect/pkg/billing"
	"github.com/effective-security/mcpinspect/pkg/llmfactory"
	"github.com/effective-security/mcpinspect/pkg/llms"
	"github.com/effective-security/mcpinspect/pkg/mcpbridge"
	"github.com/effective-security/mcpinspect/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "inspector")

const assistantName = "MCP Tester"

// Inspector runs the test pipeline.
type Inspector struct {
	cfg      *Config
	platform apify.Platform
	factory  llmfactory.Factory
	meter    *billing.Meter

	// Dial establishes the bridge to the remote server. Overridable in tests.
	Dial func(ctx context.Context, p mcpbridge.Params) (*mcpbridge.Bridge, error)
}

// New returns an Inspector.
func New(cfg *Config, platform apify.Platform, factory llmfactory.Factory) *Inspector {
	var meter *billing.Meter
	if !cfg.Billing.Disabled {
		meter = billing.NewMeter(platform,
			billing.WithBlockSize(cfg.Billing.BlockSize),
			billing.WithEvents(cfg.Billing.InputEvent, cfg.Billing.OutputEvent),
		)
	}
	return &Inspector{
		cfg:      cfg,
		platform: platform,
		factory:  factory,
		meter:    meter,
		Dial:     mcpbridge.Dial,
	}
}

// Run executes one test pass. A missing server URL ends the run cleanly
// after setting a status message; transport and model failures are fatal.
func (x *Inspector) Run(ctx context.Context) error {
	started := time.Now()
	err := x.run(ctx)
	if err != nil {
		metricskey.PerfInspectRun.MeasureSince(started, "failed")
		return err
	}
	metricskey.PerfInspectRun.MeasureSince(started, "completed")
	return nil
}

func (x *Inspector) run(ctx context.Context) error {
	raw, err := x.platform.GetInput(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to fetch run input")
	}

	in, err := DecodeInput(raw)
	if err != nil {
		if errors.Is(err, ErrMissingURL) {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "missing_mcp_url")
			if serr := x.platform.SetStatusMessage(ctx, MissingURLStatus); serr != nil {
				logger.ContextKV(ctx, xlog.ERROR,
					"reason", "failed_to_set_status",
					"err", serr.Error(),
				)
			}
			return nil
		}
		return err
	}

	// the chat identity correlates bridge, agent and tool-call logs of
	// this test pass
	chatCtx := chatmodel.NewChatContext("", in)
	ctx = chatmodel.WithChatContext(ctx, chatCtx)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "starting",
		"chat_id", chatCtx.GetChatID(),
		"url", in.MCPURL,
	)

	model, err := x.model()
	if err != nil {
		return errors.WithMessage(err, "failed to create LLM model")
	}

	bridge, err := x.Dial(ctx, mcpbridge.Params{
		URL:            in.MCPURL,
		Headers:        in.Headers,
		Command:        x.cfg.Bridge.Command,
		Package:        x.cfg.Bridge.Package,
		ConnectTimeout: x.cfg.Bridge.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bridge.Close(); cerr != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "failed_to_close_bridge",
				"err", cerr.Error(),
			)
		}
	}()

	toolSet, err := bridge.Tools(ctx)
	if err != nil {
		return err
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "tools_discovered",
		"url", in.MCPURL,
		"count", len(toolSet),
	)

	cb := newRunCallback()
	agent := assistants.NewAssistant[TestReport](model, NewTestPrompt(),
		assistants.WithCallback(cb),
		assistants.WithTemperature(0),
	).
		WithName(assistantName).
		WithTools(toolSet...)

	var report TestReport
	_, err = agent.Run(ctx, &assistants.CallInput{
		Input: userPrompt,
		PromptInputs: map[string]any{
			"url": in.MCPURL,
		},
	}, &report)
	if err != nil {
		if raw, ok := cb.RawParseFailure(); ok {
			// Degrade, do not fail: surface the raw result and persist
			// nothing.
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "unstructured_result",
				"raw", raw,
			)
			x.chargeUsage(ctx, cb)
			return nil
		}
		x.chargeUsage(ctx, cb)
		return errors.WithMessage(err, "agent run failed")
	}

	report.AllTestsPassed = report.AllPassed()
	x.logReport(ctx, report)

	if err := x.persist(ctx, in.MCPURL, report); err != nil {
		return err
	}

	x.chargeUsage(ctx, cb)
	return nil
}

func (x *Inspector) model() (llms.Model, error) {
	if x.cfg.Model != "" {
		return x.factory.ModelByName(x.cfg.Model)
	}
	return x.factory.DefaultModel()
}

func (x *Inspector) persist(ctx context.Context, url string, report TestReport) error {
	var items any = report.ToolsStatus
	if x.cfg.LegacyOutput {
		items = []LegacyReport{{
			MCPURL:         url,
			AllTestsPassed: report.AllTestsPassed,
			ToolsStatus:    report.ToolsStatus,
		}}
	}
	if len(report.ToolsStatus) == 0 && !x.cfg.LegacyOutput {
		return nil
	}
	err := x.platform.PushData(ctx, items)
	if err != nil {
		return errors.WithMessage(err, "failed to persist test results")
	}
	return nil
}

func (x *Inspector) logReport(ctx context.Context, report TestReport) {
	total, passed, failed := report.Tally()
	logger.ContextKV(ctx, xlog.INFO,
		"status", "tests_completed",
		"total", total,
		"passed", passed,
		"failed", failed,
		"all_passed", report.AllTestsPassed,
	)
	for _, t := range report.ToolsStatus {
		marker := "PASS"
		result := "passed"
		if !t.Passed {
			marker = "FAIL"
			result = "failed"
		}
		metricskey.StatsToolsTested.IncrCounter(1, result)
		logger.ContextKV(ctx, xlog.INFO,
			"test", marker,
			"tool", t.Name,
			"detail", t.Detail,
		)
	}
}

func (x *Inspector) chargeUsage(ctx context.Context, cb *runCallback) {
	if x.meter == nil {
		return
	}
	usage := cb.Usage()
	logger.ContextKV(ctx, xlog.INFO,
		"status", "usage",
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"llm_calls", usage.LLMCalls,
	)
	// Charge failures must not invalidate the already produced report.
	_ = x.meter.ChargeUsage(ctx, usage.InputTokens, usage.OutputTokens)
}
