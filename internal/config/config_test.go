package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Topic != "ssbu_c" || cfg.MessageType != "compressed" {
		t.Fatalf("unexpected defaults: %q %q", cfg.Topic, cfg.MessageType)
	}
	if cfg.Display.TargetWidth != 1280 {
		t.Fatalf("unexpected target width %d", cfg.Display.TargetWidth)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.yaml")
	content := `
topic: front_camera
message_type: raw
transport:
  kind: mqtt
  endpoint: tcp://broker:1883
web:
  enabled: true
stats_interval: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Topic != "front_camera" || cfg.MessageType != "raw" {
		t.Fatalf("unexpected topic/type: %q %q", cfg.Topic, cfg.MessageType)
	}
	if cfg.Transport.Kind != "mqtt" || cfg.Transport.Endpoint != "tcp://broker:1883" {
		t.Fatalf("unexpected transport: %+v", cfg.Transport)
	}
	if !cfg.Web.Enabled || cfg.Web.Addr != ":8890" {
		t.Fatalf("unexpected web config: %+v", cfg.Web)
	}
	if cfg.StatsInterval != 5*time.Second {
		t.Fatalf("unexpected stats interval %v", cfg.StatsInterval)
	}
	if cfg.Display.TargetWidth != 1280 {
		t.Fatalf("default target width lost: %d", cfg.Display.TargetWidth)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Topic = ""
	cfg.MessageType = "video"
	cfg.Transport.Kind = "dds"
	cfg.Web.JPEGQuality = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"topic", "message_type", "transport.kind", "jpeg_quality"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateDebugSkipsTransport(t *testing.T) {
	cfg := Default()
	cfg.Debug.Enabled = true
	cfg.Transport.Kind = ""
	cfg.Transport.Endpoint = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("debug config should not need a transport: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
