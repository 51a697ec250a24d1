package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"routeconv/internal/config"
)

// TestLoad_ExpandsEnvAndAppliesDefaults verifies env expansion and defaulting.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_SRL_PASSWORD", "NokiaSrl1!")

	path := writeConfig(t, `
[run]
duration = "30s"
families = ["ipv4-unicast", " ipv6-unicast "]

[source]
username = "admin"
password = "${TEST_SRL_PASSWORD}"

[inventory]
devices = ["10.0.0.1", "10.0.0.2"]
`)

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Source.Password != "NokiaSrl1!" {
		t.Fatalf("unexpected password: %q", cfg.Source.Password)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging to be enabled by default")
	}
	if got := cfg.Run.Interval.Duration; got != time.Second {
		t.Fatalf("unexpected default interval: %v", got)
	}
	if got := cfg.Run.FetchTimeout.Duration; got != 10*time.Second {
		t.Fatalf("unexpected default fetch timeout: %v", got)
	}
	if got := cfg.Run.Grace.Duration; got != 10*time.Second {
		t.Fatalf("unexpected default grace: %v", got)
	}
	if cfg.Run.Protocol != "bgp" || cfg.Run.NetworkInstance != "default" || cfg.Run.Metric != "total" {
		t.Fatalf("unexpected run defaults: %+v", cfg.Run)
	}
	if got := cfg.Run.Families[1]; got != "ipv6-unicast" {
		t.Fatalf("expected trimmed family, got %q", got)
	}
	if cfg.Source.Kind != config.SourceGNMI || cfg.Source.Port != 57400 {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Source.GNMICPath != "gnmic" {
		t.Fatalf("unexpected gnmic path default: %q", cfg.Source.GNMICPath)
	}
	if len(cfg.Inventory.Kinds) != 1 || cfg.Inventory.Kinds[0] != "nokia_srlinux" {
		t.Fatalf("unexpected inventory kinds: %v", cfg.Inventory.Kinds)
	}
	if !cfg.Report.XLSX || cfg.Report.SQLite {
		t.Fatalf("unexpected report sinks: %+v", cfg.Report)
	}
	if cfg.Report.Dir != "data" || cfg.Report.Prefix != "route_stats" {
		t.Fatalf("unexpected report defaults: %+v", cfg.Report)
	}
	if cfg.Run.Threshold.Enabled() {
		t.Fatalf("did not expect thresholds")
	}
}

// TestLoad_JSONRPCDefaultPort verifies kind-specific port defaults.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_JSONRPCDefaultPort(t *testing.T) {
	path := writeConfig(t, `
[run]
duration = "10s"
families = ["evpn"]

[source]
kind = "JSONRPC"

[inventory]
devices = ["leaf1"]
`)

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source.Kind != config.SourceJSONRPC || cfg.Source.Port != 80 {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
}

// TestLoad_WithoutFileUsesOverrides verifies flag-only configuration.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_WithoutFileUsesOverrides(t *testing.T) {
	cfg, err := config.Load("", func(cfg *config.Config) {
		cfg.Run.Duration.Duration = time.Minute
		cfg.Run.Families = []string{"ipv4-unicast"}
		cfg.Run.Threshold.Start = []int64{0}
		cfg.Run.Threshold.End = []int64{1000}
		cfg.Inventory.Devices = []string{"clab-lab-srl1"}
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Run.Duration.Duration != time.Minute {
		t.Fatalf("unexpected duration: %v", cfg.Run.Duration.Duration)
	}
	if !cfg.Run.Threshold.Enabled() {
		t.Fatalf("expected thresholds to be enabled")
	}
}

// TestLoad_ConfigDirMergesTomlFiles verifies directory snippets are concatenated in name order.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirMergesTomlFiles(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"10-run.toml": `
[run]
duration = "1m"
families = ["ipv4-unicast"]
`,
		"20-inventory.toml": `
[inventory]
devices = ["srl1"]
`,
		"notes.txt": "ignored",
	})

	cfg, err := config.Load(dir, nil)
	if err != nil {
		t.Fatalf("load config dir: %v", err)
	}
	if len(cfg.Inventory.Devices) != 1 || cfg.Inventory.Devices[0] != "srl1" {
		t.Fatalf("unexpected devices: %v", cfg.Inventory.Devices)
	}
}

// TestLoad_ConfigDirRejectsWithoutToml verifies empty config directories fail.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirRejectsWithoutToml(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"readme.md": "nothing"})

	_, err := config.Load(dir, nil)
	if err == nil || !strings.Contains(err.Error(), "no *.toml files") {
		t.Fatalf("expected no toml files error, got: %v", err)
	}
}

// TestLoad_RejectsThresholdMismatch verifies start/end lengths must match families.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsThresholdMismatch(t *testing.T) {
	path := writeConfig(t, `
[run]
duration = "30s"
families = ["ipv4-unicast", "ipv6-unicast"]

[run.threshold]
start = [0]
end = [1000, 2000]

[inventory]
devices = ["srl1"]
`)

	_, err := config.Load(path, nil)
	if !errors.Is(err, config.ErrThresholdMismatch) {
		t.Fatalf("expected threshold mismatch, got: %v", err)
	}
}

// TestLoad_RejectsInvalidValues verifies validation messages for bad fields.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing duration",
			body: "[run]\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "run.duration must be > 0",
		},
		{
			name: "negative interval",
			body: "[run]\nduration=\"1s\"\ninterval=\"-1s\"\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "run.interval must be > 0",
		},
		{
			name: "no families",
			body: "[run]\nduration=\"1s\"\n[inventory]\ndevices=[\"a\"]\n",
			want: "run.families must contain at least one family",
		},
		{
			name: "duplicate family",
			body: "[run]\nduration=\"1s\"\nfamilies=[\"evpn\",\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "duplicate",
		},
		{
			name: "unsupported protocol",
			body: "[run]\nduration=\"1s\"\nprotocol=\"isis\"\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "not supported",
		},
		{
			name: "bad metric",
			body: "[run]\nduration=\"1s\"\nmetric=\"best\"\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "run.metric",
		},
		{
			name: "bad source kind",
			body: "[run]\nduration=\"1s\"\nfamilies=[\"evpn\"]\n[source]\nkind=\"snmp\"\n[inventory]\ndevices=[\"a\"]\n",
			want: "source.kind",
		},
		{
			name: "no devices",
			body: "[run]\nduration=\"1s\"\nfamilies=[\"evpn\"]\n",
			want: "inventory requires devices or topology",
		},
		{
			name: "file log without path",
			body: "[log.file]\nenabled=true\n[run]\nduration=\"1s\"\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "log.file.path is required",
		},
		{
			name: "debug listen",
			body: "[debug]\nenabled=true\nlisten=\"nope\"\n[run]\nduration=\"1s\"\nfamilies=[\"evpn\"]\n[inventory]\ndevices=[\"a\"]\n",
			want: "debug.listen must be host:port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body), nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// TestDuration_UnmarshalText verifies duration parsing errors are reported.
// Params: testing.T for assertions.
// Returns: none.
func TestDuration_UnmarshalText(t *testing.T) {
	var d config.Duration
	if err := d.UnmarshalText([]byte(" 1500ms ")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected duration: %v", d.Duration)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected parse error")
	}
}

// writeConfig creates a temp config file with provided body.
// Params: t test handle; body TOML content.
// Returns: absolute file path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

// writeConfigDir creates a temp config directory populated with provided files.
// Params: t test handle; files map[name]body.
// Returns: absolute directory path.
func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config file %q: %v", name, err)
		}
	}

	return dir
}
