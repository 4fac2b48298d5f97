package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chr1sbest/refetch/internal/banner"
	"github.com/chr1sbest/refetch/internal/config"
	"github.com/chr1sbest/refetch/internal/logger"
	"github.com/chr1sbest/refetch/internal/metrics"
	"github.com/chr1sbest/refetch/internal/runner"
	"github.com/chr1sbest/refetch/internal/status"
	"github.com/chr1sbest/refetch/internal/tracker"
)

func runCmd(args []string) int {
	for i := range args {
		if args[i] == "--once" {
			args[i] = "-once"
		}
	}

	env, err := config.ParseEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", env.ConfigPath, "Path to config file (.json, .yaml, .yml)")
	once := fs.Bool("once", false, "Fetch every controller once (with retries), then exit")
	fs.Parse(args)

	loader := config.NewLoader(env.ConfigDir)
	path := loader.Resolve(*configFile)
	cfg, err := loader.LoadAndValidate(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, closeLog, err := buildLogger(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := newRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	runID := tracker.NewRunID()
	var trk *tracker.Writer
	if env.StateDir != "" {
		trk = tracker.NewWriter(env.StateDir)
		releaseLock, err := trk.AcquireLock(runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer func() { _ = releaseLock() }()
	}

	var st *status.Writer
	if !env.NoStatus {
		banner.New().Print(cfg, shortVersion())
		st = status.New()
	}

	r := runner.New(ctx, runner.Options{
		Logger:  log,
		Metrics: rec,
		Status:  st,
		Tracker: trk,
		RunID:   runID,
		Once:    *once,
	})
	defer r.Close()

	if env.MetricsAddr != "" {
		stop, err := serveMetrics(env.MetricsAddr, reg, r, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer stop()
	}

	if err := r.Apply(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *once {
		return runOnce(ctx, r)
	}
	return runContinuous(ctx, r, loader, path, env, log)
}

func runOnce(ctx context.Context, r *runner.Runner) int {
	err := r.Settle(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, runner.ErrControllersFailed):
		fmt.Fprintln(os.Stderr, err)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
}

func runContinuous(ctx context.Context, r *runner.Runner, loader *config.Loader, path string, env config.Env, log logger.Logger) int {
	watcher, err := config.NewWatcher(loader, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	watcher.SetDebounce(env.Debounce)
	defer watcher.Stop()

	var events <-chan config.ConfigEvent
	if err := watcher.Start(ctx); err != nil {
		// Keep running the config already applied; only hot reload is lost.
		log.Warn("config watcher disabled", logger.F("error", err))
	} else {
		events = watcher.Events()
	}

	if err := r.Run(ctx, events); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	return 0
}

func buildLogger(env config.Env) (logger.Logger, func(), error) {
	level := logger.ParseLevel(env.LogLevel)
	format := logger.ParseFormat(env.LogFormat)

	if env.LogFile == "" {
		return logger.New(level, format), func() {}, nil
	}
	log, closeFile, err := logger.NewFileLogger(env.LogFile, level, format)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = closeFile() }, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics exposes /metrics and a JSON /state of every controller.
func serveMetrics(addr string, reg *prometheus.Registry, r *runner.Runner, log logger.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/state", stateHandler(r))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logger.F("error", err))
		}
	}()
	log.Info("serving metrics", logger.F("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

type snapshotter interface {
	Snapshots() []tracker.ControllerState
}

func stateHandler(r snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Snapshots())
	}
}
