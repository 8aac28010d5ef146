package inspector_test

import (
	"testing"

	"github.com/effective-security/mcpinspect/internal/inspector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInput(t *testing.T) {
	in, err := inspector.DecodeInput([]byte(`{"mcpUrl":"https://example/mcp"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example/mcp", in.MCPURL)
	assert.NotNil(t, in.Headers)
	assert.Empty(t, in.Headers)
}

func TestDecodeInputHeaders(t *testing.T) {
	in, err := inspector.DecodeInput([]byte(`{
		"mcpUrl": "https://example/mcp",
		"headers": {"Authorization": "Bearer X", "X-Tenant": "acme"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer X",
		"X-Tenant":      "acme",
	}, in.Headers)
}

func TestDecodeInputMissingURL(t *testing.T) {
	for _, raw := range []string{
		``,
		`{}`,
		`{"mcpUrl":""}`,
		`{"mcpUrl":null}`,
		`{"mcpUrl":"   "}`,
		`{"headers":{"k":"v"}}`,
	} {
		_, err := inspector.DecodeInput([]byte(raw))
		require.Error(t, err, "input %q", raw)
		assert.ErrorIs(t, err, inspector.ErrMissingURL, "input %q", raw)
	}
}

func TestDecodeInputMalformed(t *testing.T) {
	_, err := inspector.DecodeInput([]byte(`[1,2,3`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, inspector.ErrMissingURL)
}
