package generate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gaspardpetit/text2mesh/internal/mesh"
)

// Request is the body of a generation call.
type Request struct {
	Prompt string
	// Format is nil when the client omitted the key.
	Format *string
}

// EffectiveFormat returns the requested format, "stl" when none was given.
func (r Request) EffectiveFormat() string {
	if r.Format == nil {
		return mesh.FormatSTL
	}
	return *r.Format
}

var errNotObject = errors.New("request body must be a JSON object")

// DecodeRequest parses a JSON object with optional string fields prompt and
// format. Unknown fields are ignored.
func DecodeRequest(r io.Reader) (Request, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Request{}, validation(fmt.Errorf("read body: %w", err))
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return Request{}, validation(errNotObject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Request{}, validation(fmt.Errorf("invalid JSON: %w", err))
	}
	var req Request
	if raw, ok := fields["prompt"]; ok {
		if err := decodeString(raw, &req.Prompt); err != nil {
			return Request{}, validation(fmt.Errorf("prompt: %w", err))
		}
	}
	if raw, ok := fields["format"]; ok {
		f, err := decodeFormat(raw)
		if err != nil {
			return Request{}, validation(fmt.Errorf("format: %w", err))
		}
		req.Format = &f
	}
	return req, nil
}

// decodeFormat accepts a string or any JSON scalar. Non-string scalars such as
// null or 1 keep their JSON text, so they select the glTF-binary branch and
// name the file after it.
func decodeFormat(raw json.RawMessage) (string, error) {
	switch {
	case len(raw) == 0:
		return "", errors.New("missing value")
	case raw[0] == '"':
		var f string
		err := json.Unmarshal(raw, &f)
		return f, err
	case raw[0] == '{' || raw[0] == '[':
		return "", errors.New("must be a string")
	default:
		return string(raw), nil
	}
}

func decodeString(raw json.RawMessage, dst *string) error {
	if len(raw) == 0 || raw[0] != '"' {
		return errors.New("must be a string")
	}
	return json.Unmarshal(raw, dst)
}
