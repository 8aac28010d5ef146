// mcpinspect tests a remote MCP server: it probes every exposed tool with an
// LLM agent and writes a per-tool pass/fail report.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/effective-security/mcpinspect/internal/inspector"
	"github.com/effective-security/mcpinspect/pkg/apify"
	"github.com/effective-security/mcpinspect/pkg/llmfactory"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "mcpinspect")

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("mcpinspect", flag.ContinueOnError)
	cfgFile := fs.String("cfg", os.Getenv("MCPINSPECT_CONFIG"), "configuration file")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	cfg, err := inspector.LoadConfig(*cfgFile)
	if err != nil {
		logger.KV(xlog.ERROR,
			"reason", "failed_to_load_config",
			"cfg", *cfgFile,
			"err", err.Error(),
		)
		return 1
	}

	platform, err := apify.New()
	if err != nil {
		logger.KV(xlog.ERROR,
			"reason", "platform_not_configured",
			"err", err.Error(),
		)
		return 1
	}

	factory := llmfactory.New(&cfg.LLM)

	run := inspector.New(cfg, platform, factory)
	if err := run.Run(context.Background()); err != nil {
		logger.KV(xlog.ERROR,
			"reason", "run_failed",
			"err", err.Error(),
		)
		return 1
	}
	return 0
}
