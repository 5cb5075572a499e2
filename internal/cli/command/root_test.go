package command

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestApp_Structure(t *testing.T) {
	app := App()
	if app.Name != "onboard-cli" {
		t.Errorf("Name = %q", app.Name)
	}

	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"snapshot", "watch", "server", "version"} {
		if !names[want] {
			t.Errorf("missing command: %s", want)
		}
	}

	flags := make(map[string]bool)
	for _, f := range app.Flags {
		flags[f.Names()[0]] = true
	}
	for _, want := range []string{"config", "backend", "data-dir", "output", "server"} {
		if !flags[want] {
			t.Errorf("missing global flag: --%s", want)
		}
	}
}

func TestParseGlobalFlags(t *testing.T) {
	c := testContext("--backend", "file", "-d", "/tmp/x", "-o", "json", "--timeout", "3s", "-V")
	got := ParseGlobalFlags(c)

	if got.Backend != "file" || got.DataDir != "/tmp/x" {
		t.Errorf("storage flags = %q, %q", got.Backend, got.DataDir)
	}
	if got.Output != "json" || !got.Verbose {
		t.Errorf("output = %q verbose = %v", got.Output, got.Verbose)
	}
	if got.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", got.Timeout)
	}
	if got.Server != "127.0.0.1:8080" {
		t.Errorf("Server default = %q", got.Server)
	}
}

func TestGlobalFlags_Overrides(t *testing.T) {
	tests := []struct {
		name  string
		flags GlobalFlags
		want  map[string]any
	}{
		{"none", GlobalFlags{}, map[string]any{}},
		{
			name:  "storage",
			flags: GlobalFlags{Backend: "file", DataDir: "/d"},
			want:  map[string]any{"storage.engine": "file", "storage.data_dir": "/d"},
		},
		{
			name:  "security",
			flags: GlobalFlags{EncryptionKey: "k", Cipher: "aes-gcm"},
			want:  map[string]any{"security.encryption_key": "k", "security.cipher": "aes-gcm"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.overrides(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("overrides() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(testContext("--backend", "file", "--data-dir", dir))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Storage.Engine != "file" || cfg.Storage.DataDir != dir {
		t.Errorf("storage = %+v", cfg.Storage)
	}

	_, err = loadConfig(testContext("--backend", "tape"))
	if err == nil || !strings.Contains(err.Error(), "storage.engine") {
		t.Errorf("loadConfig(tape) error = %v", err)
	}
}

func TestApp_RejectsUnknownOutput(t *testing.T) {
	_, err := runApp(t, "", "-o", "xml", "version")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("error = %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "built at") {
		t.Errorf("table output = %q", out)
	}

	out, err = runApp(t, "", "-o", "yaml", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "go_version:") {
		t.Errorf("yaml output = %q", out)
	}
}
