// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/r48"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "r48ctl.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
interface: can1
textfile:
  path: /tmp/r48.prom
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Interface != "can1" {
		t.Errorf("Interface = %q, want can1", cfg.Interface)
	}
	if cfg.Transport != TransportSocketCAN {
		t.Errorf("Transport = %q, want socketcan", cfg.Transport)
	}
	if cfg.Bitrate != 125000 {
		t.Errorf("Bitrate = %d, want 125000", cfg.Bitrate)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %s, want 10s", cfg.PollInterval)
	}
	if cfg.Link.RestartMS != 1500 {
		t.Errorf("Link.RestartMS = %d, want 1500", cfg.Link.RestartMS)
	}
	if cfg.Textfile.Metric != "R48_RECTIFIER" {
		t.Errorf("Textfile.Metric = %q, want R48_RECTIFIER", cfg.Textfile.Metric)
	}
	id, err := cfg.WriteIDValue()
	if err != nil || id != r48.DefaultWriteID {
		t.Errorf("WriteIDValue() = 0x%X, %v, want 0x%X", id, err, r48.DefaultWriteID)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
transport: ws
url: wss://gateway.local/can
username: admin
write_id: "0x06080783"
poll_interval: 5s
link:
  configure: true
  restart_ms: 500
prometheus:
  listen: ":9480"
redis:
  addr: localhost:6379
  history: 100
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	id, _ := cfg.WriteIDValue()
	if id != r48.AltWriteID {
		t.Errorf("write id = 0x%X, want 0x%X", id, r48.AltWriteID)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if !cfg.Link.Configure || cfg.Link.RestartMS != 500 {
		t.Errorf("Link = %+v", cfg.Link)
	}
	if cfg.Prometheus.Listen != ":9480" || cfg.Redis.History != 100 || cfg.Redis.Channel != "r48:snapshots" {
		t.Errorf("exporters = %+v %+v", cfg.Prometheus, cfg.Redis)
	}
	if cfg.Textfile.Path != "" {
		t.Errorf("Textfile.Path = %q, want disabled", cfg.Textfile.Path)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown transport", "transport: usb\n", "unknown transport"},
		{"slcan without port", "transport: slcan\n", "port is required"},
		{"ws without url", "transport: ws\n", "url is required"},
		{"bad write id", "write_id: banana\n", "invalid CAN id"},
		{"write id too large", "write_id: \"0x20000000\"\n", "exceeds 29 bits"},
		{"poll too fast", "poll_interval: 100ms\n", "poll_interval"},
		{"poll too slow", "poll_interval: 2m\n", "poll_interval"},
		{"bad log format", "log:\n  format: xml\n", "log format"},
		{"negative history", "redis:\n  history: -1\n", "history"},
		{"bad yaml", "interface: [\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.data))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Textfile.Path == "" {
		t.Error("Default() disables the textfile publisher")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x0607FF83", 0x0607FF83, false},
		{"0X06080783", 0x06080783, false},
		{"100665219", 0x06000783, false},
		{"", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseID(%q) = 0x%X, want 0x%X", tt.in, got, tt.want)
		}
	}
}
