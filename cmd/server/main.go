package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jaehyunpark/clockproxy/internal/cache"
	"github.com/jaehyunpark/clockproxy/internal/config"
	httphandler "github.com/jaehyunpark/clockproxy/internal/http"
	"github.com/jaehyunpark/clockproxy/internal/lifecycle"
	"github.com/jaehyunpark/clockproxy/internal/observability"
	"github.com/jaehyunpark/clockproxy/internal/service"
	"github.com/jaehyunpark/clockproxy/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.ServiceKey == "" {
		logger.Warn("PUBLIC_DATA_SERVICE_KEY not set; weather requests will answer 400")
	}

	var persister cache.Persister
	var memcacheCloser *cache.MemcachedPersister
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedPersister(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached persister", zap.Error(err))
		}
		memcacheCloser = mc
		persister = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		persister = cache.NewFilePersister(cfg.CacheFile)
		logger.Info("cache backend: file", zap.String("path", cfg.CacheFile))
	}

	store := cache.NewStore(persister, cfg.CacheTTL, logger)
	store.Load()

	endpoints := upstream.NewEndpoints(cfg.ServiceKey, cfg.NX, cfg.NY, cfg.Station)
	fetcher := upstream.NewClient(cfg.UpstreamTimeout, logger, cfg.BreakerEnabled)
	aggregator := service.NewAggregator(store, fetcher, endpoints, logger, time.Now)

	snapshotAge := func() (time.Time, bool) {
		_, capturedAt, ok := store.Snapshot()
		return capturedAt, ok
	}
	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(aggregator, logger, snapshotAge, cachePing)
	homeProxy := httphandler.NewHomeProxy(cfg.HomeURL, cfg.HomeToken, cfg.RequestTimeout, logger)
	static := httphandler.NewStaticHandler(cfg.StaticDir)

	router := mux.NewRouter()
	router.Use(httphandler.CORSMiddleware)
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)

	// Preflight first so OPTIONS never reaches the proxy or static handler.
	router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(handler.Preflight)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.Handle("/api/weather",
		httphandler.TimeoutMiddleware(cfg.RequestTimeout)(http.HandlerFunc(handler.GetWeather))).Methods("GET")
	router.PathPrefix("/api/").Handler(homeProxy).Methods("GET", "POST")
	router.PathPrefix("/").Handler(static).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("home_url", cfg.HomeURL),
			zap.String("static_dir", cfg.StaticDir))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
