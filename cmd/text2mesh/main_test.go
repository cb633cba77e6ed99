package main

import (
	"testing"

	"github.com/gaspardpetit/text2mesh/internal/config"
	"github.com/gaspardpetit/text2mesh/internal/pipeline/procedural"
	"github.com/gaspardpetit/text2mesh/internal/pipeline/remote"
)

func TestNewBackend(t *testing.T) {
	var cfg config.ServerConfig
	cfg.SetDefaults()
	if _, ok := newBackend(cfg).(*procedural.Backend); !ok {
		t.Fatalf("default backend should be procedural")
	}

	cfg.Backend = config.BackendRemote
	cfg.BackendURL = "http://worker:8000/"
	c, ok := newBackend(cfg).(*remote.Client)
	if !ok {
		t.Fatalf("expected remote client")
	}
	if c.BaseURL != "http://worker:8000" {
		t.Fatalf("base url %q", c.BaseURL)
	}
}
