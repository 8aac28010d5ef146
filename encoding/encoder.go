// Package encoding provides output parsers that turn model text into
// typed Go values.
package encoding

import (
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/mcpinspect/encoding/json"
)

// SchemaEncoder marshals and unmarshals typed values and can describe
// the expected format to the model.
type SchemaEncoder interface {
	Marshal(req any) ([]byte, error)
	Unmarshal([]byte, any) error
	// GetFormatInstructions returns the wrapped message with message schema for the prompt
	GetFormatInstructions() string
}

type Validator interface {
	Validate(any) error
}

type Mode = string

const (
	ModeJSON             Mode = "json"
	ModeJSONSchema       Mode = "json_schema"
	ModeJSONSchemaStrict Mode = "json_schema_strict" // Not all providers support this and all props must be required
	ModePlainText        Mode = "plain_text"
)

// ModeDefault is the default mode for the encoder.
// Allow to override in apps.
var ModeDefault = ModeJSONSchema

func PredefinedSchemaEncoder(mode Mode, req any) (SchemaEncoder, error) {
	switch mode {
	case ModeJSON, ModeJSONSchema, ModeJSONSchemaStrict:
		return jsonenc.NewEncoder(req)
	case ModePlainText:
		return plainEncoder{}, nil
	default:
		return nil, errors.Newf("no predefined encoder for mode %q", mode)
	}
}

// plainEncoder passes text through untouched.
type plainEncoder struct{}

func (plainEncoder) Marshal(req any) ([]byte, error) {
	if s, ok := req.(string); ok {
		return []byte(s), nil
	}
	return nil, errors.New("plain encoder supports only strings")
}

func (plainEncoder) Unmarshal(bs []byte, ret any) error {
	if s, ok := ret.(*string); ok {
		*s = strings.TrimSpace(string(bs))
		return nil
	}
	return errors.New("plain encoder supports only strings")
}

func (plainEncoder) GetFormatInstructions() string { return "" }

var (
	_ SchemaEncoder = (*jsonenc.Encoder)(nil)
	_ SchemaEncoder = plainEncoder{}
)
