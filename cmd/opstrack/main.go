package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/opstrack/internal/config"
	"codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/errtrack"
	"codeberg.org/mutker/opstrack/internal/logger"
	"codeberg.org/mutker/opstrack/internal/metrics"
	"codeberg.org/mutker/opstrack/internal/perf"
	"codeberg.org/mutker/opstrack/internal/pid"
	"codeberg.org/mutker/opstrack/internal/report"
	"golang.org/x/sync/errgroup"
)

const (
	metricsNamespace  = "opstrack"
	reporterComponent = "Reporter"
)

type app struct {
	cfg       *config.Config
	collector *metrics.Collector
	errors    *errtrack.Tracker
	perf      *perf.Tracker
	reporter  *report.Reporter
	out       io.Writer
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	errFactory := errors.New()

	collector := metrics.NewCollector()
	tracker := errtrack.New(cfg.MaxHistory)

	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	reg, err := report.NewRegistry(metricsNamespace, collector, tracker)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	reporter, err := report.New(format, collector, tracker, report.WithGatherer(reg))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return &app{
		cfg:       cfg,
		collector: collector,
		errors:    tracker,
		perf: perf.New(collector, tracker,
			perf.WithLogger(logger.Default()),
			perf.WithMemorySampling(cfg.SampleMemory)),
		reporter: reporter,
		out:      out,
	}, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := config.NewLoader()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Level(), logger.IsService())
	logger.Debug().Str("config_file", loader.ConfigFileUsed()).Msg("Config loaded")

	if err := pid.Write(cfg.PIDDir); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		cleanup(cfg)
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	go handleSignals(cancel)
	watchConfig(ctx, loader)

	if d := cfg.RunFor(); d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		defer stop()
	}

	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup(cfg)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func watchConfig(ctx context.Context, loader *config.Loader) {
	err := loader.Watch(ctx, func(c *config.Config) {
		logger.SetLogLevel(c.Level())
		logger.Info().Str("log_level", c.Level().String()).Msg("Log level updated")
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Config watch disabled")
	}
}

func cleanup(cfg *config.Config) {
	if err := pid.Remove(cfg.PIDDir); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

// run drives the workers and the periodic report until ctx is done, then
// renders a final report.
func (a *app) run(ctx context.Context) error {
	logger.Info().
		Int("workers", a.cfg.Workers).
		Int("rate", a.cfg.Rate).
		Int("max_history", a.errors.MaxHistory()).
		Str("report_format", string(a.reporter.Format())).
		Msg("Workload started")

	seed := uint64(time.Now().UnixNano())
	g, gctx := errgroup.WithContext(ctx)
	for i := range a.cfg.Workers {
		w := newWorker(i, a.perf, seed)
		g.Go(func() error {
			return w.run(gctx, a.cfg.Rate)
		})
	}
	g.Go(func() error {
		return a.reportLoop(gctx)
	})

	err := g.Wait()
	if rerr := a.report(context.Background()); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return errors.New().Wrap(errors.ErrMainLoop, err)
	}

	return nil
}

func (a *app) reportLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.ReportEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.report(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to render report")
			}
		}
	}
}

func (a *app) report(ctx context.Context) error {
	return a.perf.Run(ctx, reporterComponent, "Render", func(context.Context) error {
		return a.reporter.Render(a.out)
	})
}
