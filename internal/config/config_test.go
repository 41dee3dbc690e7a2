package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PanicAfter != 20 {
		t.Fatalf("expected panic_after 20, got %d", cfg.PanicAfter)
	}
	if cfg.Vendor != "Apple" {
		t.Fatalf("expected vendor Apple, got %s", cfg.Vendor)
	}
	if cfg.Probe.Port != 62078 || cfg.Probe.Timeout != 2*time.Second {
		t.Fatalf("expected probe 62078/2s, got %d/%s", cfg.Probe.Port, cfg.Probe.Timeout)
	}
	if cfg.Scan.Grace != 2*time.Second || cfg.Scan.Pacing != 5*time.Millisecond {
		t.Fatalf("unexpected scan timings %+v", cfg.Scan)
	}
	if cfg.Halt.Command != "halt" || cfg.Workers != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !reflect.DeepEqual(Default(), cfg) {
		t.Fatalf("expected Default() to match Load(\"\")")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
vendor: QEMU
panic_after: 0
workers: 8
scan:
  interface: eth1
  grace: 500ms
  max_hosts: 1024
probe:
  timeout: 750ms
oui:
  offline: true
halt:
  command: poweroff
  args: ["-f"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Vendor != "QEMU" || cfg.PanicAfter != 0 || cfg.Workers != 8 {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.Scan.Interface != "eth1" || cfg.Scan.Grace != 500*time.Millisecond || cfg.Scan.MaxHosts != 1024 {
		t.Fatalf("unexpected scan config %+v", cfg.Scan)
	}
	if cfg.Scan.Pacing != 5*time.Millisecond {
		t.Fatalf("expected pacing default 5ms, got %s", cfg.Scan.Pacing)
	}
	if cfg.Probe.Timeout != 750*time.Millisecond || cfg.Probe.Port != 62078 {
		t.Fatalf("unexpected probe config %+v", cfg.Probe)
	}
	if !cfg.OUI.Offline || cfg.OUI.Path == "" {
		t.Fatalf("unexpected oui config %+v", cfg.OUI)
	}
	if cfg.Halt.Command != "poweroff" || len(cfg.Halt.Args) != 1 || cfg.Halt.Args[0] != "-f" {
		t.Fatalf("unexpected halt config %+v", cfg.Halt)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"negative threshold": "panic_after: -1\n",
		"negative workers":   "workers: -2\n",
		"bad port":           "probe:\n  port: 70000\n",
		"negative grace":     "scan:\n  grace: -1s\n",
		"not yaml":           "scan: [\n",
	}
	for name, data := range tests {
		if _, err := Load(writeConfig(t, data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}
