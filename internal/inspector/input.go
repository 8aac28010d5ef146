package inspector

import (
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
)

// MissingURLStatus is the user visible status set when the input has no
// server URL.
const MissingURLStatus = "MCP URL is required in the input."

// ErrMissingURL signals that the run input has no server URL. The run ends
// cleanly with a status message, not a crash.
var ErrMissingURL = errors.New("mcpUrl is required")

// Input is the run input.
type Input struct {
	// MCPURL is the URL of the remote MCP server to test. Required.
	MCPURL string `json:"mcpUrl"`
	// Headers are forwarded to the remote server on every request.
	Headers map[string]string `json:"headers,omitempty"`
}

// DecodeInput parses and validates the raw run input. A missing or empty
// mcpUrl returns ErrMissingURL. Absent headers default to an empty map.
func DecodeInput(raw []byte) (*Input, error) {
	var in Input
	if len(raw) > 0 {
		if err := ljson.Unmarshal(raw, &in); err != nil {
			return nil, errors.Wrap(err, "failed to parse input")
		}
	}
	if strings.TrimSpace(in.MCPURL) == "" {
		return nil, errors.WithStack(ErrMissingURL)
	}
	if in.Headers == nil {
		in.Headers = map[string]string{}
	}
	return &in, nil
}
