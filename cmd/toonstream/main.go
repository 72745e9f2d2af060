// Package main wires together the scraper service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/himanshusaroha648/toonstream-cloudflare/internal/catalog"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/config"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/fetch"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/logging"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/metrics"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/proxy"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/resolve"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/scheduler"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/server"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/store"
	pgstore "github.com/himanshusaroha648/toonstream-cloudflare/internal/store/postgres"
	"github.com/himanshusaroha648/toonstream-cloudflare/internal/syncer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, ring, err := logging.NewWithRing(cfg.Logging.Development, cfg.Logging.RingSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := proxy.NewPool(proxy.Config{
		Enabled:      cfg.Proxy.Enabled,
		List:         cfg.Proxy.List,
		File:         cfg.Proxy.File,
		Validate:     cfg.Proxy.Validate,
		TestURL:      cfg.Proxy.TestURL,
		MaxValidated: cfg.Proxy.MaxValidated,
	}, logger.Named("proxy"))
	if err := pool.Initialize(ctx); err != nil {
		logger.Fatal("proxy pool init failed", zap.Error(err))
	}

	var episodeStore store.Store
	if cfg.Database.Enabled {
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: int32(cfg.Database.MaxConns),
		})
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		episodeStore = pg
		logger.Info("using postgres store")
	} else {
		episodeStore = store.NewMemory()
		logger.Info("using in-memory store, records will not survive restarts")
	}
	defer episodeStore.Close()

	fetcher := fetch.New(fetch.Config{
		SourceURL:   cfg.Source.BaseURL,
		Cookie:      cfg.Source.Cookie,
		Timeout:     cfg.FetchTimeout(),
		Retries:     cfg.HTTP.MaxRetries,
		BackoffBase: cfg.BackoffBase(),
	}, pool, logger.Named("fetch"))

	engine := resolve.New(resolve.Config{
		MaxDepth:  cfg.Resolver.MaxDepth,
		SourceURL: cfg.Source.BaseURL,
	}, fetcher, logger.Named("resolve"))

	tmdb := catalog.New(catalog.Config{
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
	}, logger.Named("catalog"))
	if !tmdb.Enabled() {
		logger.Info("catalog enrichment disabled, no TMDB API key configured")
	}

	sync := syncer.New(syncer.Config{
		BaseURL:        cfg.Source.BaseURL,
		FallbackURLs:   cfg.Source.FallbackURLs,
		AjaxURL:        cfg.Source.AjaxURL,
		Delay:          cfg.SyncDelay(),
		EpisodeRetries: cfg.Sync.EpisodeRetries,
	}, fetcher, engine, episodeStore, tmdb, logger.Named("syncer"))

	sched, err := scheduler.New(scheduler.Config{
		CronExpr:   cfg.Scheduler.CronExpr,
		RunOnStart: cfg.Scheduler.RunOnStart,
	}, sync, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	apiServer := server.New(ctx, cfg, sync, episodeStore, pool, ring, logger.Named("server"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
