package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"routeconv/internal/config"
	"routeconv/internal/source"
)

// Probe fetches route counts once from every device and logs the outcome.
// Params: ctx lifecycle; cfg validated config.
// Returns: error naming failed devices, or nil when every device answered.
func Probe(ctx context.Context, cfg *config.Config) error {
	return probeWithDeps(ctx, cfg, defaultRunDeps())
}

// probeWithDeps runs the connectivity check with injectable dependencies.
// Params: ctx lifecycle; cfg validated config; deps dependency set.
// Returns: probe error or nil.
func probeWithDeps(ctx context.Context, cfg *config.Config, deps runDeps) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	logger, closeLogger, err := deps.newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	devices, err := deps.devices(cfg.Inventory)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}

	src, err := deps.newSource(cfg.Source, queryFor(cfg))
	if err != nil {
		return fmt.Errorf("build source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("close source", slog.String("error", err.Error()))
		}
	}()

	var (
		mu     sync.Mutex
		failed []string
	)

	var g errgroup.Group
	g.SetLimit(cfg.Inventory.Parallel)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			if err := probeDevice(ctx, src, device, cfg.Run.FetchTimeout.Duration, logger); err != nil {
				mu.Lock()
				failed = append(failed, device)
				mu.Unlock()
			}
			return nil
		})
	}
	// Failures are collected in failed; the group only bounds concurrency.
	_ = g.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		logger.Error("probe failed", slog.Int("failed", len(failed)), slog.Int("devices", len(devices)))
		return fmt.Errorf("probe: %d of %d devices failed: %v", len(failed), len(devices), failed)
	}
	logger.Info("probe succeeded", slog.Int("devices", len(devices)))
	return nil
}

// probeDevice fetches one reading and logs counts or the classified error.
// Params: ctx lifecycle; src metric source; device id; timeout fetch bound; logger output.
// Returns: fetch error or nil.
func probeDevice(ctx context.Context, src source.Source, device string, timeout time.Duration, logger *slog.Logger) error {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	reading, err := src.Fetch(fetchCtx, device)
	took := time.Since(started)
	if err != nil {
		kind := "unknown"
		var fetchErr *source.FetchError
		if errors.As(err, &fetchErr) {
			kind = fetchErr.Kind.String()
		}
		logger.Warn(
			"device unreachable",
			slog.String("device", device),
			slog.String("kind", kind),
			slog.Duration("took", took),
			slog.String("error", err.Error()),
		)
		return err
	}

	families := make([]string, 0, len(reading))
	for family := range reading {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		counts := reading[family]
		logger.Info(
			"device reachable",
			slog.String("device", device),
			slog.String("family", family),
			slog.Float64("total", counts.Total),
			slog.Float64("active", counts.Active),
			slog.Duration("took", took),
		)
	}
	return nil
}
