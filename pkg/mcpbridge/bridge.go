// Package mcpbridge connects to a remote MCP server through a local stdio
// bridge process and exposes the server's tools as callable tools.
package mcpbridge

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "mcpbridge")

const (
	// DefaultCommand launches the bridge package via the Node package runner.
	DefaultCommand = "npx"
	// DefaultPackage is the stdio-to-remote bridge package.
	DefaultPackage = "mcp-remote"

	// DefaultConnectTimeout bounds the bridge spawn and MCP handshake.
	DefaultConnectTimeout = 2 * time.Minute

	clientName    = "mcpinspect"
	clientVersion = "1.0.0"
)

// Params describes the remote server to bridge to.
type Params struct {
	// URL of the remote MCP server. Required.
	URL string
	// Headers are forwarded to the remote server on every request.
	Headers map[string]string
	// Command overrides the bridge launcher. Defaults to npx.
	Command string
	// Package overrides the bridge package. Defaults to mcp-remote.
	Package string
	// ConnectTimeout bounds the spawn and handshake.
	ConnectTimeout time.Duration
}

// Args returns the command arguments for the bridge process. Headers are
// emitted in sorted key order so the command line is deterministic.
func (p Params) Args() []string {
	args := []string{p.URL}

	keys := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--header", fmt.Sprintf("%s: %s", k, p.Headers[k]))
	}
	return args
}

// Bridge is a live connection to a remote MCP server. Closing the Bridge
// terminates the session and the bridge process.
type Bridge struct {
	session *mcp.ClientSession
}

// Dial spawns the bridge process, performs the MCP handshake and returns a
// connected Bridge. The bridge process is terminated when the returned
// Bridge is closed, or on connect failure.
func Dial(ctx context.Context, p Params) (*Bridge, error) {
	if p.URL == "" {
		return nil, errors.New("mcpbridge: server URL is required")
	}

	command := p.Command
	if command == "" {
		command = DefaultCommand
	}
	pkg := p.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	args := append([]string{pkg}, p.Args()...)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "connecting",
		"url", p.URL,
		"command", command,
		"headers", len(p.Headers),
	)

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	transport := &mcp.CommandTransport{Command: cmd}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}, nil)

	started := time.Now()
	session, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		metricskey.PerfBridgeConnect.MeasureSince(started, "failed")
		return nil, errors.WithMessagef(err, "failed to connect to MCP server %q", p.URL)
	}
	metricskey.PerfBridgeConnect.MeasureSince(started, "connected")

	logger.ContextKV(ctx, xlog.INFO,
		"status", "connected",
		"url", p.URL,
	)
	return &Bridge{session: session}, nil
}

// NewFromSession wraps an already connected session. Used in tests with
// in-memory transports.
func NewFromSession(session *mcp.ClientSession) *Bridge {
	return &Bridge{session: session}
}

// Close terminates the session and the bridge process.
func (b *Bridge) Close() error {
	if b == nil || b.session == nil {
		return nil
	}
	return b.session.Close()
}

// ListTools enumerates the tools exposed by the remote server.
func (b *Bridge) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var list []*mcp.Tool
	for tool, err := range b.session.Tools(ctx, nil) {
		if err != nil {
			return nil, errors.WithMessage(err, "failed to list MCP tools")
		}
		if tool == nil {
			continue
		}
		list = append(list, tool)
	}
	return list, nil
}

// CallTool invokes the named tool on the remote server and returns the raw
// result.
func (b *Bridge) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := b.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to call MCP tool %q", name)
	}
	return res, nil
}
