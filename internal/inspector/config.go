package inspector

import (
	"time"

	"github.com/effective-security/mcpinspect/pkg/billing"
	"github.com/effective-security/mcpinspect/pkg/llmfactory"
	"github.com/effective-security/mcpinspect/pkg/mcpbridge"
	"github.com/effective-security/x/configloader"
)

// Config is the inspector run configuration.
type Config struct {
	// LLM specifies the model providers.
	LLM llmfactory.Config `json:"llm" yaml:"llm"`
	// Model is the preferred model name. Empty uses the provider default.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Bridge configures the stdio bridge to the remote server.
	Bridge BridgeConfig `json:"bridge" yaml:"bridge"`
	// Billing configures pay-per-event charging.
	Billing BillingConfig `json:"billing" yaml:"billing"`

	// LegacyOutput persists the single-object report shape instead of the
	// flat record list.
	LegacyOutput bool `json:"legacy_output,omitempty" yaml:"legacy_output,omitempty"`
}

// BridgeConfig configures the bridge process launch.
type BridgeConfig struct {
	// Command is the bridge launcher. Defaults to npx.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Package is the bridge package. Defaults to mcp-remote.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
	// ConnectTimeout bounds the spawn and handshake.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
}

// BillingConfig configures token charging.
type BillingConfig struct {
	// Disabled turns off charging, for local runs.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// BlockSize is the number of tokens per billing event.
	BlockSize int `json:"block_size,omitempty" yaml:"block_size,omitempty"`
	// InputEvent is the event name charged per input token block.
	InputEvent string `json:"input_event,omitempty" yaml:"input_event,omitempty"`
	// OutputEvent is the event name charged per output token block.
	OutputEvent string `json:"output_event,omitempty" yaml:"output_event,omitempty"`
}

// LoadConfig loads the configuration from a YAML file, expanding environment
// variables. An empty file name returns the defaults.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bridge.Command == "" {
		c.Bridge.Command = mcpbridge.DefaultCommand
	}
	if c.Bridge.Package == "" {
		c.Bridge.Package = mcpbridge.DefaultPackage
	}
	if c.Bridge.ConnectTimeout <= 0 {
		c.Bridge.ConnectTimeout = mcpbridge.DefaultConnectTimeout
	}
	if c.Billing.BlockSize <= 0 {
		c.Billing.BlockSize = billing.DefaultBlockSize
	}
	if c.Billing.InputEvent == "" {
		c.Billing.InputEvent = billing.DefaultInputEvent
	}
	if c.Billing.OutputEvent == "" {
		c.Billing.OutputEvent = billing.DefaultOutputEvent
	}
}
