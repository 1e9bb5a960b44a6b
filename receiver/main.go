package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/pkg/buffer"
	pkgmetrics "github.com/mjasion/balena-home/pkg/metrics"
	"github.com/mjasion/balena-home/pkg/profiling"
	"github.com/mjasion/balena-home/pkg/telemetry"
	"github.com/mjasion/balena-home/pkg/types"
	"github.com/mjasion/balena-home/receiver/config"
	"github.com/mjasion/balena-home/receiver/health"
	"github.com/mjasion/balena-home/receiver/hub"
	"github.com/mjasion/balena-home/receiver/scanner"
	"github.com/mjasion/balena-home/receiver/watchdog"
)

func main() {
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting BTHome receiver")
	cfg.PrintConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("BTHome receiver failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("BTHome receiver stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize profiler: %w", err)
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("failed to shutdown profiler", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := telemetry.InitProviders(ctx, &cfg.OpenTelemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry providers: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown OpenTelemetry providers", zap.Error(err))
		}
	}()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	ringBuffer := buffer.New[*types.Reading](cfg.Prometheus.BufferSize, logger)

	receiverHub, err := hub.New(cfg.BLE, ringBuffer, instruments, logger)
	if err != nil {
		return fmt.Errorf("failed to build device table: %w", err)
	}

	pusher := pkgmetrics.New(pkgmetrics.Config{
		URL:               cfg.Prometheus.URL,
		Username:          cfg.Prometheus.Username,
		Password:          cfg.Prometheus.Password,
		PushIntervalSec:   cfg.Prometheus.PushIntervalSeconds,
		BatchSize:         cfg.Prometheus.BatchSize,
		TimeSeriesBuilder: pkgmetrics.BuildBTHomeTimeSeries,
	}, ringBuffer, logger)

	deviceWatchdog, err := watchdog.New(cfg.Watchdog.Schedule,
		time.Duration(cfg.Watchdog.StaleAfterSeconds)*time.Second, receiverHub, logger)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	bleScanner := scanner.New(receiverHub, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bleScanner.Start(ctx); err != nil {
			logger.Error("BLE scanner failed", zap.Error(err))
			cancel()
		}
	}()

	var checker *health.Checker
	if cfg.Health.Port > 0 {
		checker = health.NewChecker(pusher, ringBuffer, receiverHub,
			time.Duration(cfg.Prometheus.PushIntervalSeconds)*time.Second, cfg.Health.Port, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := checker.Start(); err != nil {
				logger.Error("health check server failed", zap.Error(err))
			}
		}()
	}

	deviceWatchdog.Start()

	if cfg.Prometheus.StartAtEvenSecond {
		now := time.Now()
		wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
		logger.Info("waiting to start at even second", zap.Duration("wait_duration", wait))
		time.Sleep(wait)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pusher.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled")
	}
	cancel()

	if err := bleScanner.Stop(); err != nil {
		logger.Error("failed to stop BLE scanner", zap.Error(err))
	}
	deviceWatchdog.Stop()
	if checker != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := checker.Stop(stopCtx); err != nil {
			logger.Error("failed to stop health check server", zap.Error(err))
		}
		stopCancel()
	}

	logger.Info("performing final metrics push")
	finalCtx, finalCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finalCancel()
	pusher.Flush(finalCtx)

	wg.Wait()
	return nil
}
