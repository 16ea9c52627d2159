package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lysyi3m/bbs-comb/app/api"
	"github.com/lysyi3m/bbs-comb/app/board"
	"github.com/lysyi3m/bbs-comb/app/cfg"
	"github.com/lysyi3m/bbs-comb/app/database"
	"github.com/lysyi3m/bbs-comb/app/fetch"
	"github.com/lysyi3m/bbs-comb/app/momentum"
	"github.com/lysyi3m/bbs-comb/app/tasks"
	"github.com/lysyi3m/bbs-comb/app/view"
)

func main() {
	// .env is optional; flags and real environment variables win
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting BBS Comb server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	configCache := board.NewConfigCache(appCfg.BoardsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load board configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Board configurations loaded", "count", configCache.GetConfigCount())

	threadRepo := database.NewThreadRepository(db)
	boardRepo := database.NewBoardRepository(db)
	historyRepo := database.NewReadHistoryRepository(db)
	ngRepo := database.NewNGRuleRepository(db)

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent)
	subjectParser := board.NewSubjectParser()

	calculator := momentum.NewCalculator(momentum.Options{
		TargetCountInWindow: appCfg.MomentumTargetCount,
		MinWindowMin:        3,
		MaxWindowMin:        20,
		HalfLifeMillis:      int64(appCfg.MomentumHalfLifeMs),
		Compression:         momentum.Compression(appCfg.MomentumCompression),
	})

	coordinator := view.NewCoordinator(threadRepo, boardRepo, historyRepo, ngRepo)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_s", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(configCache, threadRepo, boardRepo, fetcher, subjectParser, coordinator)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, threadRepo, boardRepo, historyRepo, ngRepo, coordinator, fetcher, calculator)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("BBS Comb server started")

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("BBS Comb server shutdown complete")
}
