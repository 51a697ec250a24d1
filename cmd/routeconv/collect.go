package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"routeconv/internal/app"
	"routeconv/internal/config"
)

// newCollectCmd runs one collection and writes reports.
// Params: none.
// Returns: collect command.
func newCollectCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Sample route counts for a fixed duration and report convergence",
		Long: `collect polls every device in parallel for --duration seconds, writes the aligned series
to the configured reports and computes convergence when start/end thresholds are given.
Press ENTER to stop collecting early and still write the reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(cmd.ErrOrStderr(), "collecting, press ENTER to stop early")
			return app.Run(ctx, cfg, app.Runtime{Cancel: enterPressed(ctx, cmd.InOrStdin())})
		},
	}
	flags.register(cmd.Flags(), true)
	return cmd
}

// newProbeCmd checks device reachability once.
// Params: none.
// Returns: probe command.
func newProbeCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fetch route counts once from every device to check connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Probe(ctx, cfg)
		},
	}
	flags.register(cmd.Flags(), false)
	return cmd
}

// loadConfig reads the config file and applies command-line overrides.
// Params: cmd parsed command; flags bound values.
// Returns: validated config or error.
func loadConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	override, err := flags.override(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cmd.Name() == "probe" {
		// probe never uses the run window.
		base := override
		override = func(cfg *config.Config) {
			base(cfg)
			if cfg.Run.Duration.Duration <= 0 {
				cfg.Run.Duration.Duration = time.Second
			}
		}
	}

	cfg, err := config.Load(flags.configPath, override)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// enterPressed closes the returned channel when a line is read from in.
// Params: ctx stops waiting on shutdown; in operator input.
// Returns: cancel signal channel.
func enterPressed(ctx context.Context, in io.Reader) <-chan struct{} {
	pressed := make(chan struct{})
	go func() {
		reader := bufio.NewReader(in)
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
		select {
		case <-ctx.Done():
		default:
			close(pressed)
		}
	}()
	return pressed
}
