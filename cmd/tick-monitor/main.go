package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
	"github.com/savelevaa/tick-monitor/internal/scheduler"
	"github.com/savelevaa/tick-monitor/internal/service"
	"github.com/savelevaa/tick-monitor/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	lg := setupLogger(cfg)
	slog.SetDefault(lg)
	lg.Info("starting tick-monitor", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rootCtx = log.Into(rootCtx, lg)

	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := postgres.New(dbCtx, cfg.DB.URL)
	dbCancel()
	if err != nil {
		lg.Error("postgres_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	lg.Info("postgres_connected")

	svc := service.New(store, *cfg)

	sched := scheduler.New(cfg.Parsing.Interval(), cfg.Parsing.ShutdownGrace, func(ctx context.Context) {
		summary := svc.RunPipeline(ctx)

		// Переобучение прогноза — в фоне, его сбой не трогает следующий прогон.
		var failed int
		for _, o := range summary.Outcomes {
			if o.Err != nil {
				failed++
			}
		}
		if len(summary.Outcomes) > 0 && failed < len(summary.Outcomes) {
			svc.RefreshForecastAsync(ctx)
		}
	})
	svc.SetTrigger(sched.Trigger)
	lg.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready
	httpAddr := cfg.HTTP.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		sched.Start(rootCtx)
		close(schedDone)
	}()

	atomic.StoreInt32(&ready, 1)
	lg.Info("monitor_started", slog.Duration("update_interval", cfg.Parsing.Interval()))

	<-rootCtx.Done()
	lg.Info("shutdown_requested")
	atomic.StoreInt32(&ready, 0)

	// Планировщик сам ждёт in-flight прогон в пределах grace.
	select {
	case <-schedDone:
	case <-time.After(cfg.Parsing.ShutdownGrace + 5*time.Second):
		lg.Warn("scheduler_stop_timeout")
	}

	_ = httpSrv.Shutdown(context.Background())

	rootCancel()
	store.Close()

	lg.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по конфигурации логирования и окружению.
func setupLogger(cfg *config.Config) *slog.Logger {
	if !cfg.Logging.Enabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	level := parseLevel(cfg.Logging.Level)

	var out io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		if f, err := openLogFile(cfg.Logging); err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "log file unavailable, falling back to stdout: %v\n", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Env {
	case envDev, envProd:
		return slog.New(slog.NewJSONHandler(out, opts))
	default:
		return slog.New(slog.NewTextHandler(out, opts))
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogFile открывает файл журнала, перед этим ротируя его, если он
// перерос max_bytes: file -> file.1 -> ... -> file.<backup_count>.
func openLogFile(cfg config.LoggingConfig) (*os.File, error) {
	if st, err := os.Stat(cfg.File); err == nil && cfg.MaxBytes > 0 && st.Size() >= cfg.MaxBytes {
		rotate(cfg.File, cfg.BackupCount)
	}
	return os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func rotate(path string, backups int) {
	if backups <= 0 {
		_ = os.Remove(path)
		return
	}
	_ = os.Remove(fmt.Sprintf("%s.%d", path, backups))
	for i := backups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	_ = os.Rename(path, path+".1")
}
