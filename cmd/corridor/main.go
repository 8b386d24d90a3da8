package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/corridor/internal/api"
	"github.com/star/corridor/internal/auth"
	"github.com/star/corridor/internal/clock"
	"github.com/star/corridor/internal/config"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/forecast"
	"github.com/star/corridor/internal/health"
	"github.com/star/corridor/internal/history"
	"github.com/star/corridor/internal/logging"
	"github.com/star/corridor/internal/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv("CORRIDOR_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "corridor:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Bootstrap logger for config loading; replaced once the log section is known.
	boot := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath, boot)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer closer.Close()

	center, err := control.New(cfg.Control.CenterConfig(), logger)
	if err != nil {
		return err
	}

	hist, err := history.New(center, cfg.History.Capacity, logger)
	if err != nil {
		return err
	}

	fc := forecast.New(forecast.Config{
		Workers:      cfg.Forecast.Workers,
		MaxPositions: cfg.Forecast.MaxPositions,
	}, logger)

	streamHandler := stream.NewHandler(hist, cfg.Control.Bounds, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		WriteTimeout:       cfg.Stream.WriteTimeout,
		TrustProxy:         cfg.Stream.TrustProxy,
	}, logger)

	clk, err := newClock(cfg.Clock)
	if err != nil {
		return err
	}

	ready := &health.Readiness{}

	authCfg := auth.Config{
		Enabled:     cfg.Auth.Enabled,
		Token:       cfg.Auth.Token,
		PublicPaths: cfg.Auth.PublicPaths,
	}
	driver := &clock.Driver{
		Clock:     clk,
		Interval:  cfg.Clock.Interval,
		Target:    center,
		Observers: []clock.Observer{hist, ready},
		Logger:    logger,
	}

	srv := api.NewServer(cfg.HTTP.Addr, logger, authCfg, api.Deps{
		Center:     center,
		History:    hist,
		Forecaster: fc,
		Stream:     streamHandler,
		Readiness:  ready,
		Driver:     driver,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", authCfg.Enabled,
			"clock_mode", cfg.Clock.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return driver.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped", "airplanes", center.Len())
	return nil
}

func newClock(cfg config.Clock) (clock.Clock, error) {
	switch cfg.Mode {
	case config.ClockSimulated:
		start := cfg.Start
		if start.IsZero() {
			start = time.Now().UTC().Truncate(time.Second)
		}
		return clock.NewSimulated(start, cfg.Step)
	default:
		return clock.Wall{}, nil
	}
}
