// Package billing converts LLM token usage into pay-per-event charges.
package billing

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/apify"
	"github.com/effective-security/mcpinspect/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "billing")

const (
	// DefaultBlockSize is the number of tokens covered by one billing event.
	DefaultBlockSize = 100

	// DefaultInputEvent is the event charged per input token block.
	DefaultInputEvent = "input-tokens-100"
	// DefaultOutputEvent is the event charged per output token block.
	DefaultOutputEvent = "output-tokens-100"
)

// Blocks returns the number of billing blocks covering the given token
// count: the count divided by blockSize, rounded up. Non-positive counts
// yield zero blocks.
func Blocks(tokens int64, blockSize int) int {
	if tokens <= 0 || blockSize <= 0 {
		return 0
	}
	return int((tokens + int64(blockSize) - 1) / int64(blockSize))
}

// Meter charges token usage to the platform.
type Meter struct {
	platform  apify.Platform
	blockSize int

	inputEvent  string
	outputEvent string
}

// Option is a functional option for the Meter.
type Option func(*Meter)

// WithBlockSize overrides the tokens-per-event block size.
func WithBlockSize(size int) Option {
	return func(m *Meter) {
		if size > 0 {
			m.blockSize = size
		}
	}
}

// WithEvents overrides the charged event names.
func WithEvents(inputEvent, outputEvent string) Option {
	return func(m *Meter) {
		if inputEvent != "" {
			m.inputEvent = inputEvent
		}
		if outputEvent != "" {
			m.outputEvent = outputEvent
		}
	}
}

// NewMeter returns a Meter charging to the given platform.
func NewMeter(platform apify.Platform, opts ...Option) *Meter {
	m := &Meter{
		platform:    platform,
		blockSize:   DefaultBlockSize,
		inputEvent:  DefaultInputEvent,
		outputEvent: DefaultOutputEvent,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ChargeUsage charges the input and output token counts as separate events.
// Zero counts in a direction produce no event. Charge failures are logged
// and returned, but the caller is expected to treat them as non-fatal: the
// run result is already produced by the time usage is charged.
func (m *Meter) ChargeUsage(ctx context.Context, inputTokens, outputTokens int64) error {
	var errs error
	if err := m.charge(ctx, m.inputEvent, Blocks(inputTokens, m.blockSize)); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if err := m.charge(ctx, m.outputEvent, Blocks(outputTokens, m.blockSize)); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	return errs
}

func (m *Meter) charge(ctx context.Context, eventName string, count int) error {
	if count == 0 {
		return nil
	}
	err := m.platform.Charge(ctx, eventName, count)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "charge_failed",
			"event", eventName,
			"count", count,
			"err", err.Error(),
		)
		return errors.WithMessagef(err, "failed to charge event %q", eventName)
	}
	metricskey.StatsBillingEvents.IncrCounter(float64(count), eventName)
	return nil
}
