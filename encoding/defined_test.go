package encoding_test

import (
	"testing"

	"github.com/effective-security/mcpinspect/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolOutcome struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail" validate:"required"`
}

func TestTypedOutputParser(t *testing.T) {
	parser, err := encoding.NewTypedOutputParser(toolOutcome{}, encoding.ModeJSONSchema)
	require.NoError(t, err)

	out, err := parser.Parse(`{"name":"echo","passed":true,"detail":"echoed text back"}`)
	require.NoError(t, err)
	assert.Equal(t, "echo", out.Name)
	assert.True(t, out.Passed)

	// sloppy model output with extra prose around the JSON
	out, err = parser.Parse("Here is the result:\n```json\n{\"name\":\"echo\",\"passed\":false,\"detail\":\"rate limited\"}\n```\nLet me know!")
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.Equal(t, "rate limited", out.Detail)

	_, err = parser.Parse("no structured output at all <<<")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestTypedOutputParserValidation(t *testing.T) {
	parser, err := encoding.NewTypedOutputParser(toolOutcome{}, encoding.ModeJSON)
	require.NoError(t, err)
	parser.WithValidation(true)

	_, err = parser.Parse(`{"name":"echo","passed":true}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate")
}

func TestTypedOutputParserInstructions(t *testing.T) {
	parser, err := encoding.NewTypedOutputParser(toolOutcome{}, encoding.ModeJSONSchema)
	require.NoError(t, err)

	instr := parser.GetFormatInstructions()
	assert.Contains(t, instr, "JSON schema")
	assert.Contains(t, instr, `"name"`)
	assert.Equal(t, "encoding_test.toolOutcome parser", parser.Type())
}

func TestPredefinedSchemaEncoder(t *testing.T) {
	_, err := encoding.PredefinedSchemaEncoder(encoding.ModeJSON, toolOutcome{})
	require.NoError(t, err)

	enc, err := encoding.PredefinedSchemaEncoder(encoding.ModePlainText, "")
	require.NoError(t, err)
	var s string
	require.NoError(t, enc.Unmarshal([]byte(" text \n"), &s))
	assert.Equal(t, "text", s)

	_, err = encoding.PredefinedSchemaEncoder("xml", toolOutcome{})
	require.Error(t, err)
}

func TestSimpleOutputParser(t *testing.T) {
	parser := encoding.NewSimpleOutputParser()
	out, err := parser.Parse("  plain answer \n")
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out.String())
}
