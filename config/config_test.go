package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danderson/scriptbus"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptbus.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		want *Config
	}{
		{
			name: "defaults",
			want: &Config{
				Bus:      "session",
				Timeout:  scriptbus.DefaultTimeout,
				LogLevel: "info",
			},
		},
		{
			name: "file",
			file: `
bus: system
timeout: 5s
debug: true
lib_dir: /usr/share/scriptbus
`,
			want: &Config{
				Bus:      "system",
				Timeout:  5 * time.Second,
				Debug:    true,
				LogLevel: "info",
				LibDir:   "/usr/share/scriptbus",
			},
		},
		{
			name: "env overrides file",
			file: `
bus: system
timeout: 5s
log_level: warn
`,
			env: map[string]string{
				"SCRIPTBUS_TIMEOUT":   "250ms",
				"SCRIPTBUS_ADDRESS":   "unix:path=/tmp/bus",
				"SCRIPTBUS_LOG_LEVEL": "debug",
			},
			want: &Config{
				Bus:      "system",
				Address:  "unix:path=/tmp/bus",
				Timeout:  250 * time.Millisecond,
				LogLevel: "debug",
			},
		},
		{
			name: "env only",
			env: map[string]string{
				"SCRIPTBUS_BUS":   "starter",
				"SCRIPTBUS_DEBUG": "true",
			},
			want: &Config{
				Bus:      "starter",
				Timeout:  scriptbus.DefaultTimeout,
				Debug:    true,
				LogLevel: "info",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Fatalf("Load() wrong config (-got+want):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{"unknown bus", "bus: tram\n", nil},
		{"bad yaml", "bus: [\n", nil},
		{"zero timeout", "timeout: 0s\n", nil},
		{"bad log level", "log_level: loud\n", nil},
		{"bad env duration", "", map[string]string{"SCRIPTBUS_TIMEOUT": "soon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			cfg, err := Load(path)
			if err == nil {
				t.Fatalf("Load() succeeded with %+v, want error", cfg)
			}
			if testing.Verbose() {
				t.Logf("Load() error: %v", err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of missing file succeeded")
	}
}

func TestAccessors(t *testing.T) {
	cfg := Default()
	cfg.Bus = "system"
	cfg.LogLevel = "warn"
	bt, err := cfg.BusType()
	if err != nil {
		t.Fatal(err)
	}
	if bt != scriptbus.BusSystem {
		t.Errorf("BusType() = %v, want system", bt)
	}
	l, err := cfg.Level()
	if err != nil {
		t.Fatal(err)
	}
	if l != slog.LevelWarn {
		t.Errorf("Level() = %v, want WARN", l)
	}
}
