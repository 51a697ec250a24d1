package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"routeconv/internal/config"
)

const defaultFamilies = "ipv4-unicast,ipv6-unicast"

// runFlags holds command-line overrides applied on top of the config file.
type runFlags struct {
	configPath      string
	targets         []string
	username        string
	password        string
	networkInstance string
	protocol        string
	families        string
	duration        int
	interval        time.Duration
	output          string
	startValues     string
	endValues       string
	debug           bool
	sourceKind      string
}

// register binds common flags to fs.
// Params: fs flag set; withRun adds run-only flags.
// Returns: none.
func (f *runFlags) register(fs *pflag.FlagSet, withRun bool) {
	fs.StringVar(&f.configPath, "config", "", "path to TOML config file or directory")
	fs.StringSliceVarP(&f.targets, "targets", "t", nil, "comma-separated device list")
	fs.StringVarP(&f.username, "username", "u", "", "device username")
	fs.StringVarP(&f.password, "password", "p", "", "device password")
	fs.StringVarP(&f.networkInstance, "network-instance", "n", "", "network instance (default \"default\")")
	fs.StringVarP(&f.protocol, "protocol", "P", "", "routing protocol (default \"bgp\")")
	fs.StringVarP(&f.families, "families", "f", defaultFamilies, "comma-separated address families (used when config has none)")
	fs.StringVar(&f.sourceKind, "source", "", "metric source: gnmi, gnmic or jsonrpc")
	fs.BoolVarP(&f.debug, "debug", "x", false, "enable debug logging")
	if !withRun {
		return
	}
	fs.IntVarP(&f.duration, "duration", "d", 0, "collection duration in seconds")
	fs.DurationVar(&f.interval, "interval", 0, "polling interval (default 1s)")
	fs.StringVarP(&f.output, "output", "o", "", "report file prefix (default \"route_stats\")")
	fs.StringVarP(&f.startValues, "start-values", "s", "", "comma-separated start thresholds, one per family")
	fs.StringVarP(&f.endValues, "end-values", "e", "", "comma-separated end thresholds, one per family")
}

// override returns the config mutator applying set flags.
// Params: fs parsed flag set used to detect explicitly set flags.
// Returns: override callback for config.Load and first parse error.
func (f *runFlags) override(fs *pflag.FlagSet) (func(*config.Config), error) {
	start, err := parseInt64List(f.startValues)
	if err != nil {
		return nil, fmt.Errorf("--start-values: %w", err)
	}
	end, err := parseInt64List(f.endValues)
	if err != nil {
		return nil, fmt.Errorf("--end-values: %w", err)
	}

	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}

	return func(cfg *config.Config) {
		if changed("targets") {
			cfg.Inventory.Devices = f.targets
		}
		if changed("username") {
			cfg.Source.Username = f.username
		}
		if changed("password") {
			cfg.Source.Password = f.password
		}
		if changed("network-instance") {
			cfg.Run.NetworkInstance = f.networkInstance
		}
		if changed("protocol") {
			cfg.Run.Protocol = f.protocol
		}
		if changed("families") || len(cfg.Run.Families) == 0 {
			cfg.Run.Families = splitList(f.families)
		}
		if changed("source") {
			cfg.Source.Kind = f.sourceKind
		}
		if changed("duration") {
			cfg.Run.Duration.Duration = time.Duration(f.duration) * time.Second
		}
		if changed("interval") {
			cfg.Run.Interval.Duration = f.interval
		}
		if changed("output") {
			cfg.Report.Prefix = f.output
		}
		if changed("start-values") {
			cfg.Run.Threshold.Start = start
		}
		if changed("end-values") {
			cfg.Run.Threshold.End = end
		}
		if f.debug {
			cfg.Log.Console.Enabled = true
			cfg.Log.Console.Level = "debug"
		}
	}, nil
}

// splitList splits a comma-separated flag value.
// Params: value raw flag text.
// Returns: trimmed non-empty items.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseInt64List parses comma-separated integers.
// Params: value raw flag text; empty means no values.
// Returns: parsed list or error naming the bad item.
func parseInt64List(value string) ([]int64, error) {
	items := splitList(value)
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		parsed, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", item)
		}
		out = append(out, parsed)
	}
	return out, nil
}
