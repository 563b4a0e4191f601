package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"laundry-locker/config"
	"laundry-locker/internal/actuator"
	"laundry-locker/internal/api"
	"laundry-locker/internal/cardcache"
	"laundry-locker/internal/clock"
	"laundry-locker/internal/db"
	"laundry-locker/internal/locker"
	"laundry-locker/internal/metrics"
	"laundry-locker/internal/notification"
	"laundry-locker/internal/reader"
	"laundry-locker/internal/store"
	"laundry-locker/internal/telemetry"
	"laundry-locker/internal/washtype"
)

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	configPath := pflag.StringP("config", "c", defaultPath, "path to the YAML config file (env CONFIG_PATH)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "path", *configPath)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("locker daemon stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func policyFrom(cfg config.ReaderConfig) reader.Policy {
	p := reader.DefaultPolicy()
	if cfg.BaseIntervalMs > 0 {
		p.BaseInterval = time.Duration(cfg.BaseIntervalMs) * time.Millisecond
	}
	if cfg.FastIntervalMs > 0 {
		p.FastInterval = time.Duration(cfg.FastIntervalMs) * time.Millisecond
	}
	if cfg.ReinitEvery > 0 {
		p.ReinitEvery = cfg.ReinitEvery
	}
	return p
}

func run(cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	var stateStore store.Store
	switch cfg.Storage.Backend {
	case "database":
		stateStore = store.NewGormStore(gormDB)
	default:
		stateStore = store.NewFileStore(cfg.Storage.Path)
	}
	logger.Info("state store selected", "backend", cfg.Storage.Backend)

	// Card detection.
	hw, err := reader.New(reader.Config{Driver: cfg.Reader.Driver, Device: cfg.Reader.Device})
	if err != nil {
		return fmt.Errorf("failed to create card reader: %w", err)
	}
	cards := cardcache.New(cardcache.Options{
		Capacity: cfg.Reader.CacheSize,
		Validity: cfg.Locker.CardValidity,
	})
	detector := reader.NewDetector(hw, cards,
		reader.WithPolicy(policyFrom(cfg.Reader)),
		reader.WithLogger(logger),
		reader.WithMetrics(m),
	)

	// Remote collector.
	client := telemetry.NewClient(cfg.Remote.ServerURL, cfg.Remote.APIKey, cfg.Remote.Timeout)
	dispatcher := telemetry.NewDispatcher(client, cfg.Remote.Workers, cfg.Remote.QueueSize, logger, m)
	var fetcher washtype.Fetcher
	if client.Configured() {
		fetcher = client
	} else {
		logger.Warn("no server_url configured, telemetry disabled and wash types served from config")
	}
	catalog := washtype.NewCatalog(fetcher, cfg.WashTypes, cfg.Remote.CatalogCacheTTL, logger)

	// Web push.
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys not configured, locker notifications disabled")
	}
	notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)

	sequencer := actuator.NewSequencer(
		actuator.NewLogDriver(cfg.Locker.RelayPins, logger),
		cfg.Locker.UnlockDuration, clock.Real{}, logger)

	svc := locker.New(stateStore, cfg.Locker.LockerIDs(),
		locker.WithOpener(sequencer),
		locker.WithCatalog(catalog),
		locker.WithPublisher(dispatcher),
		locker.WithRemoteStatus(dispatcher),
		locker.WithNotifier(notifier),
		locker.WithCards(cards),
		locker.WithReader(detector),
		locker.WithLogger(logger),
		locker.WithMetrics(m),
		locker.WithDevice(locker.DeviceInfo{
			DeviceName:     cfg.Locker.DeviceName,
			DeviceLocation: cfg.Locker.DeviceLocation,
			SystemName:     cfg.Locker.SystemName,
		}),
	)
	if err := svc.Load(ctx); err != nil {
		return err
	}

	go detector.Run(ctx)
	dispatcher.Start(ctx)
	notifier.Start(ctx)
	if client.Configured() {
		go dispatcher.Heartbeat(ctx, cfg.Remote.Heartbeat, svc.Snapshot)
	}

	var simulator api.CardPresenter
	if q, ok := hw.(*reader.Queue); ok {
		simulator = q
		logger.Info("simulated card reader active, POST /api/simulate-card to present cards")
	}

	handler := api.NewHandler(api.Deps{
		Service:   svc,
		Opener:    sequencer,
		DB:        gormDB,
		WebPush:   webpushOptions,
		Simulator: simulator,
		SaveDevice: func(info locker.DeviceInfo) error {
			cfg.Locker.DeviceName = info.DeviceName
			cfg.Locker.DeviceLocation = info.DeviceLocation
			cfg.Locker.SystemName = info.SystemName
			return config.Save(configPath, cfg)
		},
		Logger: logger,
	})
	router := api.NewRouter(handler, cfg.Server, registry)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received, stopping services", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	cancel()
	// Long enough for an in-flight door sequence to relock.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Locker.UnlockDuration+5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Info("server gracefully stopped")
	return nil
}
