package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"routeconv/internal/collect"
	"routeconv/internal/config"
	"routeconv/internal/report"
	"routeconv/internal/series"
	"routeconv/internal/source"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newFakeSource(failing ...string) *fakeSource {
	fail := make(map[string]bool, len(failing))
	for _, device := range failing {
		fail[device] = true
	}
	return &fakeSource{calls: make(map[string]int), fail: fail}
}

func (s *fakeSource) Name() string { return "fake" }

// Fetch returns a route count growing from zero or a transport error for failing devices.
// Params: _ ignored context; device id.
// Returns: reading or fetch error.
func (s *fakeSource) Fetch(_ context.Context, device string) (series.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail[device] {
		return nil, &source.FetchError{Kind: source.KindTransport, Device: device, Err: errors.New("connection refused")}
	}
	routes := float64(s.calls[device] * 100)
	s.calls[device]++
	return series.Reading{"ipv4-unicast": {Total: routes, Active: routes}}, nil
}

func (s *fakeSource) Close() error { return nil }

type recordingSink struct {
	mu      sync.Mutex
	reports []report.Report
}

func (s *recordingSink) Write(_ context.Context, rep report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

// testConfig loads defaults plus a short run over devices.
// Params: t test context; devices inventory list; duration run window.
// Returns: validated config.
func testConfig(t *testing.T, devices []string, duration time.Duration) *config.Config {
	t.Helper()
	cfg, err := config.Load("", func(c *config.Config) {
		c.Inventory.Devices = devices
		c.Run.Duration.Duration = duration
		c.Run.Interval.Duration = 20 * time.Millisecond
		c.Run.FetchTimeout.Duration = time.Second
		c.Run.Grace.Duration = time.Second
		c.Run.Families = []string{"ipv4-unicast"}
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

// testDeps wires fake source and recording sink.
// Params: src fake source; sink recording sink.
// Returns: dependency set.
func testDeps(src source.Source, sink report.Sink) runDeps {
	deps := defaultRunDeps()
	deps.newLogger = func(config.LogConfig) (*slog.Logger, func(), error) {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	deps.hostInfo = func(context.Context) (report.HostInfo, error) {
		return report.HostInfo{Hostname: "test", CPUs: 1}, nil
	}
	deps.newSource = func(config.SourceConfig, source.Query) (source.Source, error) {
		return src, nil
	}
	deps.newSink = func(*config.Config, *slog.Logger) report.Sink {
		return sink
	}
	return deps
}

// TestRun_CollectsAnalyzesAndReports verifies the full run path.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_CollectsAnalyzesAndReports(t *testing.T) {
	cfg := testConfig(t, []string{"srl1", "srl2"}, 200*time.Millisecond)
	cfg.Run.Threshold = config.ThresholdConfig{Start: []int64{0}, End: []int64{200}}
	sink := &recordingSink{}

	if err := runWithDeps(context.Background(), cfg, Runtime{}, testDeps(newFakeSource(), sink)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.reports) != 1 {
		t.Fatalf("expected one report, got %d", len(sink.reports))
	}
	rep := sink.reports[0]
	if rep.Run.Stop != series.StopDeadline || len(rep.Run.Usable()) != 2 {
		t.Fatalf("unexpected run: stop=%s usable=%v", rep.Run.Stop, rep.Run.Usable())
	}
	if !rep.Analyzed || len(rep.Findings) != 2 {
		t.Fatalf("expected two findings, got %+v", rep.Findings)
	}
	for _, finding := range rep.Findings {
		if !finding.Found() {
			t.Fatalf("expected crossing for %s: %v", finding.Device, finding.Err)
		}
	}
	if rep.Source != "fake" || rep.Host.Hostname != "test" {
		t.Fatalf("unexpected report labels: %+v", rep)
	}
}

// TestRun_OperatorCancelStillReports verifies cancel ends the run early with a report.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_OperatorCancelStillReports(t *testing.T) {
	cfg := testConfig(t, []string{"srl1"}, 10*time.Second)
	sink := &recordingSink{}
	cancelSignal := make(chan struct{})
	time.AfterFunc(100*time.Millisecond, func() { close(cancelSignal) })

	started := time.Now()
	err := runWithDeps(context.Background(), cfg, Runtime{Cancel: cancelSignal}, testDeps(newFakeSource(), sink))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("cancel did not stop the run early")
	}
	if len(sink.reports) != 1 || sink.reports[0].Run.Stop != series.StopCancelled {
		t.Fatalf("expected cancelled run report, got %+v", sink.reports)
	}
	if sink.reports[0].Analyzed {
		t.Fatalf("expected no analysis without thresholds")
	}
}

// TestRun_NoUsableData verifies the error and that sinks are skipped.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_NoUsableData(t *testing.T) {
	cfg := testConfig(t, []string{"srl1"}, 100*time.Millisecond)
	sink := &recordingSink{}

	err := runWithDeps(context.Background(), cfg, Runtime{}, testDeps(newFakeSource("srl1"), sink))
	if !errors.Is(err, collect.ErrNoUsableData) {
		t.Fatalf("expected ErrNoUsableData, got %v", err)
	}
	if len(sink.reports) != 0 {
		t.Fatalf("expected sinks to be skipped")
	}
}

// TestRun_SetupErrors verifies device and source failures abort before collecting.
// Params: testing.T for assertions.
// Returns: none.
func TestRun_SetupErrors(t *testing.T) {
	cfg := testConfig(t, []string{"srl1"}, time.Second)

	deps := testDeps(newFakeSource(), &recordingSink{})
	deps.devices = func(config.InventoryConfig) ([]string, error) {
		return nil, errors.New("bad topology")
	}
	if err := runWithDeps(context.Background(), cfg, Runtime{}, deps); err == nil || !strings.Contains(err.Error(), "resolve devices") {
		t.Fatalf("expected resolve devices error, got %v", err)
	}

	deps = testDeps(newFakeSource(), &recordingSink{})
	deps.newSource = func(config.SourceConfig, source.Query) (source.Source, error) {
		return nil, errors.New("unsupported")
	}
	if err := runWithDeps(context.Background(), cfg, Runtime{}, deps); err == nil || !strings.Contains(err.Error(), "build source") {
		t.Fatalf("expected build source error, got %v", err)
	}

	if err := runWithDeps(context.Background(), nil, Runtime{}, deps); err == nil {
		t.Fatalf("expected nil config error")
	}
}

// TestProbe_ReportsFailedDevices verifies the connectivity check outcome.
// Params: testing.T for assertions.
// Returns: none.
func TestProbe_ReportsFailedDevices(t *testing.T) {
	cfg := testConfig(t, []string{"srl1", "srl2", "srl3"}, time.Second)

	if err := probeWithDeps(context.Background(), cfg, testDeps(newFakeSource(), nil)); err != nil {
		t.Fatalf("probe: %v", err)
	}

	err := probeWithDeps(context.Background(), cfg, testDeps(newFakeSource("srl2"), nil))
	if err == nil || !strings.Contains(err.Error(), "1 of 3 devices failed") || !strings.Contains(err.Error(), "srl2") {
		t.Fatalf("unexpected probe error: %v", err)
	}
}

// TestStartDebugServer_ServesMetrics verifies /metrics and idempotent stop.
// Params: testing.T for assertions.
// Returns: none.
func TestStartDebugServer_ServesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collect.NewMetrics(registry)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "routeconv_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stop, addr, err := startDebugServer(
		context.Background(),
		config.DebugConfig{Enabled: true, Listen: "127.0.0.1:0"},
		registry,
		logger,
	)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop()

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "routeconv_test_total 1") {
		t.Fatalf("unexpected metrics response %d:\n%s", resp.StatusCode, body)
	}

	stop()
	stop()

	disabledStop, disabledAddr, err := startDebugServer(context.Background(), config.DebugConfig{}, registry, logger)
	if err != nil || disabledAddr != "" {
		t.Fatalf("expected disabled server, got addr=%q err=%v", disabledAddr, err)
	}
	disabledStop()
}

// TestWatchCancel_SendOrCloseCancels verifies both a send and a close fire the cancel.
// Params: testing.T for assertions.
// Returns: none.
func TestWatchCancel_SendOrCloseCancels(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for name, fire := range map[string]func(chan struct{}){
		"close": func(ch chan struct{}) { close(ch) },
		"send":  func(ch chan struct{}) { ch <- struct{}{} },
	} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			signal := make(chan struct{}, 1)
			done := make(chan struct{})
			go func() {
				watchCancel(ctx, signal, cancel, logger)
				close(done)
			}()
			fire(signal)

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
				t.Fatalf("context not cancelled after %s", name)
			}
			<-done
		})
	}
}
