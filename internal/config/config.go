package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "line"
	defaultInterval      = time.Second
	defaultFetchTimeout  = 10 * time.Second
	defaultGrace         = 10 * time.Second
	defaultProtocol      = "bgp"
	defaultNetworkInst   = "default"
	defaultMetricKind    = "total"
	defaultSourceKind    = SourceGNMI
	defaultGNMIPort      = 57400
	defaultJSONRPCPort   = 80
	defaultGNMICPath     = "gnmic"
	defaultReportDir     = "data"
	defaultReportPrefix  = "route_stats"
	defaultInventoryKind = "nokia_srlinux"
	defaultDebugListen   = "127.0.0.1:6060"
	defaultProbeParallel = 8
)

// Source kinds accepted by source.kind.
const (
	SourceGNMI    = "gnmi"
	SourceGNMIC   = "gnmic"
	SourceJSONRPC = "jsonrpc"
)

// ErrThresholdMismatch reports start/end threshold lists that do not line up with families.
var ErrThresholdMismatch = errors.New("threshold values must match number of families")

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root collection run configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Debug     DebugConfig     `toml:"debug"`
	Run       RunConfig       `toml:"run"`
	Source    SourceConfig    `toml:"source"`
	Inventory InventoryConfig `toml:"inventory"`
	Report    ReportConfig    `toml:"report"`
}

// DebugConfig defines optional pprof and Prometheus HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: debug server settings.
type DebugConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// RunConfig describes what is sampled and for how long.
// Params: timing, protocol/family selection and optional thresholds.
// Returns: collection run settings.
type RunConfig struct {
	Duration        Duration        `toml:"duration"`
	Interval        Duration        `toml:"interval"`
	FetchTimeout    Duration        `toml:"fetch_timeout"`
	Grace           Duration        `toml:"grace"`
	MaxFailures     int             `toml:"max_failures"`
	Protocol        string          `toml:"protocol"`
	NetworkInstance string          `toml:"network_instance"`
	Families        []string        `toml:"families"`
	Metric          string          `toml:"metric"`
	Threshold       ThresholdConfig `toml:"threshold"`
}

// ThresholdConfig holds per-family convergence start/end route counts.
// Params: start/end lists index-aligned with run.families.
// Returns: threshold settings; empty lists disable analysis.
type ThresholdConfig struct {
	Start []int64 `toml:"start"`
	End   []int64 `toml:"end"`
}

// Enabled reports whether convergence thresholds were configured.
// Params: none.
// Returns: true when both start and end lists are set.
func (t ThresholdConfig) Enabled() bool {
	return len(t.Start) > 0 && len(t.End) > 0
}

// SourceConfig selects and parameterizes the device metric source.
// Params: source kind, credentials and transport options.
// Returns: metric source settings.
type SourceConfig struct {
	Kind       string `toml:"kind"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Port       int    `toml:"port"`
	SkipVerify bool   `toml:"skip_verify"`
	Insecure   bool   `toml:"insecure"`
	TLS        bool   `toml:"tls"`
	GNMICPath  string `toml:"gnmic_path"`
}

// InventoryConfig lists devices directly or through a containerlab topology.
// Params: explicit device list, topology path and node kinds to pick.
// Returns: inventory settings.
type InventoryConfig struct {
	Devices  []string `toml:"devices"`
	Topology string   `toml:"topology"`
	Kinds    []string `toml:"kinds"`
	// Parallel bounds concurrent probe requests.
	Parallel int `toml:"parallel"`
}

// ReportConfig defines output artifact settings.
// Params: output directory, file prefix and enabled sinks.
// Returns: report settings.
type ReportConfig struct {
	Dir    string `toml:"dir"`
	Prefix string `toml:"prefix"`
	XLSX   bool   `toml:"xlsx"`
	SQLite bool   `toml:"sqlite"`
}

// Load reads, expands, overrides, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files (empty means defaults only); override mutates decoded config before defaults, may be nil.
// Returns: validated config pointer or error.
func Load(path string, override func(*Config)) (*Config, error) {
	var cfg Config
	cfg.Report.XLSX = true
	cfg.Source.SkipVerify = true

	if strings.TrimSpace(path) != "" {
		raw, err := readConfigSource(path)
		if err != nil {
			return nil, err
		}

		expanded := os.ExpandEnv(string(raw))
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("decode TOML %q: %w", path, err)
		}
	}

	if override != nil {
		override(&cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: none.
func (c *Config) applyDefaults() {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}
	if c.Debug.Enabled && strings.TrimSpace(c.Debug.Listen) == "" {
		c.Debug.Listen = defaultDebugListen
	}

	if c.Run.Interval.Duration == 0 {
		c.Run.Interval.Duration = defaultInterval
	}
	if c.Run.FetchTimeout.Duration == 0 {
		c.Run.FetchTimeout.Duration = defaultFetchTimeout
	}
	if c.Run.Grace.Duration == 0 {
		c.Run.Grace.Duration = defaultGrace
	}
	c.Run.Protocol = lowerOrDefault(c.Run.Protocol, defaultProtocol)
	c.Run.Metric = lowerOrDefault(c.Run.Metric, defaultMetricKind)
	if strings.TrimSpace(c.Run.NetworkInstance) == "" {
		c.Run.NetworkInstance = defaultNetworkInst
	}
	c.Run.Families = trimList(c.Run.Families)

	c.Source.Kind = lowerOrDefault(c.Source.Kind, defaultSourceKind)
	if c.Source.Port == 0 {
		if c.Source.Kind == SourceJSONRPC {
			c.Source.Port = defaultJSONRPCPort
		} else {
			c.Source.Port = defaultGNMIPort
		}
	}
	if strings.TrimSpace(c.Source.GNMICPath) == "" {
		c.Source.GNMICPath = defaultGNMICPath
	}

	c.Inventory.Devices = trimList(c.Inventory.Devices)
	if len(c.Inventory.Kinds) == 0 {
		c.Inventory.Kinds = []string{defaultInventoryKind}
	}
	if c.Inventory.Parallel <= 0 {
		c.Inventory.Parallel = defaultProbeParallel
	}

	if strings.TrimSpace(c.Report.Dir) == "" {
		c.Report.Dir = defaultReportDir
	}
	if strings.TrimSpace(c.Report.Prefix) == "" {
		c.Report.Prefix = defaultReportPrefix
	}
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validateDebugConfig("debug", c.Debug); err != nil {
		return err
	}
	if err := validateRunConfig("run", c.Run); err != nil {
		return err
	}
	if err := validateSourceConfig("source", c.Source); err != nil {
		return err
	}

	if len(c.Inventory.Devices) == 0 && strings.TrimSpace(c.Inventory.Topology) == "" {
		return fmt.Errorf("inventory requires devices or topology")
	}

	return nil
}

// validateRunConfig validates timing, family and threshold settings.
// Params: path is config path prefix; cfg run section.
// Returns: validation error or nil.
func validateRunConfig(path string, cfg RunConfig) error {
	if cfg.Duration.Duration <= 0 {
		return fmt.Errorf("%s.duration must be > 0", path)
	}
	if cfg.Interval.Duration <= 0 {
		return fmt.Errorf("%s.interval must be > 0", path)
	}
	if cfg.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("%s.fetch_timeout must be > 0", path)
	}
	if cfg.Grace.Duration < 0 {
		return fmt.Errorf("%s.grace cannot be negative", path)
	}
	if cfg.MaxFailures < 0 {
		return fmt.Errorf("%s.max_failures cannot be negative", path)
	}
	if cfg.Protocol != defaultProtocol {
		return fmt.Errorf("%s.protocol %q is not supported (only bgp)", path, cfg.Protocol)
	}
	switch cfg.Metric {
	case "total", "active":
	default:
		return fmt.Errorf("%s.metric must be one of: total, active", path)
	}
	if len(cfg.Families) == 0 {
		return fmt.Errorf("%s.families must contain at least one family", path)
	}

	seen := make(map[string]struct{}, len(cfg.Families))
	for _, family := range cfg.Families {
		if _, dup := seen[family]; dup {
			return fmt.Errorf("%s.families contains duplicate %q", path, family)
		}
		seen[family] = struct{}{}
	}

	th := cfg.Threshold
	if len(th.Start) == 0 && len(th.End) == 0 {
		return nil
	}
	if len(th.Start) != len(cfg.Families) || len(th.End) != len(cfg.Families) {
		return fmt.Errorf(
			"%s.threshold: %w (families=%d start=%d end=%d)",
			path,
			ErrThresholdMismatch,
			len(cfg.Families),
			len(th.Start),
			len(th.End),
		)
	}

	return nil
}

// validateSourceConfig validates metric source selection and transport fields.
// Params: path is config path prefix; cfg source section.
// Returns: validation error or nil.
func validateSourceConfig(path string, cfg SourceConfig) error {
	switch cfg.Kind {
	case SourceGNMI, SourceGNMIC, SourceJSONRPC:
	default:
		return fmt.Errorf("%s.kind must be one of: gnmi, gnmic, jsonrpc", path)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%s.port must be within 1..65535", path)
	}
	if cfg.Kind == SourceGNMIC && strings.TrimSpace(cfg.GNMICPath) == "" {
		return fmt.Errorf("%s.gnmic_path is required for gnmic source", path)
	}
	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "info", "warn", "error", "debug":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validateDebugConfig validates optional debug endpoint settings.
// Params: path is config path prefix; cfg debug section.
// Returns: validation error for invalid listen endpoint.
func validateDebugConfig(path string, cfg DebugConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("%s.listen cannot be empty when enabled", path)
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

// trimList trims entries and drops blanks while keeping order.
// Params: values raw list.
// Returns: cleaned list.
func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
