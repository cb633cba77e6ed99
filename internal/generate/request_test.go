package generate

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"prompt":"a chair"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Prompt != "a chair" || req.Format != nil {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := req.EffectiveFormat(); got != "stl" {
		t.Fatalf("default format %q", got)
	}

	req, err = DecodeRequest(strings.NewReader(`{"prompt":"a cup","format":"glb","extra":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := req.EffectiveFormat(); got != "glb" {
		t.Fatalf("format %q", got)
	}

	req, err = DecodeRequest(strings.NewReader(`{"format":""}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Format == nil || req.EffectiveFormat() != "" {
		t.Fatalf("explicit empty format lost: %+v", req)
	}

	for body, want := range map[string]string{
		`{"format":null}`:  "null",
		`{"format":1}`:     "1",
		`{"format":false}`: "false",
	} {
		req, err := DecodeRequest(strings.NewReader(body))
		if err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		if got := req.EffectiveFormat(); got != want {
			t.Fatalf("%s: format %q; want %q", body, got, want)
		}
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	bodies := []string{
		``,
		`null`,
		`[]`,
		`"prompt"`,
		`{"prompt":`,
		`{"prompt":3}`,
		`{"prompt":null}`,
		`{"format":["stl"]}`,
		`{"format":{"ext":"stl"}}`,
		`{"prompt":"x"} {}`,
	}
	for _, b := range bodies {
		_, err := DecodeRequest(strings.NewReader(b))
		if err == nil {
			t.Fatalf("body %q: expected error", b)
		}
		var ge *Error
		if !errors.As(err, &ge) || ge.Kind != KindValidation {
			t.Fatalf("body %q: expected validation error, got %v", b, err)
		}
		if err.Error() == "" {
			t.Fatalf("body %q: empty message", b)
		}
	}
}
