package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/oauth2"

	"github.com/danielmmetz/hn-apicheck/api"
	"github.com/danielmmetz/hn-apicheck/check"
	"github.com/danielmmetz/hn-apicheck/hn"
	"github.com/danielmmetz/hn-apicheck/sse"
	"github.com/danielmmetz/hn-apicheck/store"
	"github.com/danielmmetz/hn-apicheck/worker"
)

func main() {
	flagSet := flag.NewFlagSet("hn-apicheck", flag.ExitOnError)

	var (
		baseURL       string
		httpTimeout   time.Duration
		concurrency   int
		groups        string
		once          bool
		interval      time.Duration
		dbPath        string
		retention     time.Duration
		addr          string
		port          int
		oidcIssuer    string
		oidcClientID  string
		upstreamToken string
		logLevel      string
	)
	flagSet.StringVar(&baseURL, "base-url", hn.DefaultBaseURL, "Base URL of the API under test")
	flagSet.DurationVar(&httpTimeout, "http-timeout", 15*time.Second, "Per-request timeout")
	flagSet.IntVar(&concurrency, "concurrency", 1, "Parallel item fetches in batch lookups")
	flagSet.StringVar(&groups, "groups", "core,edge", "Comma-separated check groups to run")
	flagSet.BoolVar(&once, "once", false, "Run the suite once and exit non-zero on any failure")
	flagSet.DurationVar(&interval, "interval", 10*time.Minute, "Time between scheduled runs")
	flagSet.StringVar(&dbPath, "db-path", "hn-apicheck.db", "Path to SQLite database file (empty disables run history)")
	flagSet.DurationVar(&retention, "retention", 7*24*time.Hour, "How long to keep run history")
	flagSet.StringVar(&addr, "addr", "localhost", "Address to listen on")
	flagSet.IntVar(&port, "port", 8080, "Port to listen on")
	flagSet.StringVar(&oidcIssuer, "oidc-issuer", "", "OIDC issuer URL (enables bearer auth on trigger and events)")
	flagSet.StringVar(&oidcClientID, "oidc-client-id", "", "OIDC client ID expected in token audience")
	flagSet.StringVar(&upstreamToken, "upstream-token", "", "Bearer token sent to the API under test")
	flagSet.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flagSet.String("config", "", "Path to config file")

	if err := ff.Parse(flagSet, os.Args[1:],
		ff.WithEnvVarPrefix("HN_APICHECK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		slog.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		slog.Error("invalid log level", "level", logLevel, "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	selected, err := parseGroups(groups)
	if err != nil {
		slog.Error("invalid groups", "error", err)
		os.Exit(1)
	}

	// HN client
	httpClient := &http.Client{Timeout: httpTimeout}
	if upstreamToken != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: upstreamToken}))
		httpClient.Timeout = httpTimeout
	}
	hnClient := hn.NewClient(
		hn.WithBaseURL(baseURL),
		hn.WithHTTPClient(httpClient),
		hn.WithConcurrency(concurrency),
	)

	// Run history
	var (
		runs    *store.RunStore
		closeDB func() error
	)
	if dbPath != "" {
		db, err := store.Open(dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		closeDB = db.Close
		runs = store.NewRunStore(db)
	}

	// SSE broker
	broker := sse.NewBroker(1000)

	runner := worker.NewRunner(hnClient, runs, broker, interval, check.WithGroups(selected...))

	if once {
		code := runOnce(runner)
		if closeDB != nil {
			closeDB()
		}
		os.Exit(code)
	}

	// Background worker context
	workerCtx, workerCancel := context.WithCancel(context.Background())

	runner.Start(workerCtx)

	if runs != nil {
		cleaner := worker.NewCleaner(runs, retention)
		cleaner.Start(workerCtx)
	}

	// API handlers
	runsHandler := api.NewRunsHandler(runs, runner)
	healthHandler := api.NewHealthHandler(runner, runs, broker)

	// Auth helper
	requireAuth := func(h http.Handler) http.Handler { return h }
	if oidcIssuer != "" {
		if oidcClientID == "" {
			slog.Error("oidc-client-id must be set with oidc-issuer (flag or HN_APICHECK_OIDC_CLIENT_ID)")
			os.Exit(1)
		}
		verifier, err := api.SetupVerifier(context.Background(), oidcIssuer, oidcClientID)
		if err != nil {
			slog.Error("OIDC discovery failed", "error", err)
			os.Exit(1)
		}
		requireAuth = func(h http.Handler) http.Handler { return api.RequireBearer(verifier, h) }
		slog.Info("OIDC configured", "issuer", oidcIssuer)
	}

	// Routes
	mux := http.NewServeMux()
	mux.Handle("GET /api/health", healthHandler)
	mux.HandleFunc("GET /api/runs", runsHandler.List)
	mux.HandleFunc("GET /api/runs/{id}", runsHandler.Get)
	mux.Handle("POST /api/runs", requireAuth(http.HandlerFunc(runsHandler.Trigger)))
	mux.Handle("GET /api/events", requireAuth(broker))

	// HTTP server with graceful shutdown
	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("server starting", "addr", listenAddr, "base_url", hnClient.BaseURL(), "interval", interval)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down", "signal", sig)

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// runOnce runs the suite a single time and returns the process exit code.
func runOnce(runner *worker.Runner) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := runner.Run(ctx, worker.TriggerOnce)
	if err != nil {
		slog.Error("run failed", "error", err)
		return 1
	}
	fmt.Printf("%d passed, %d failed, %d skipped, %d errored\n", run.Passed, run.Failed, run.Skipped, run.Errored)
	if !run.Summary.OK() {
		return 1
	}
	return 0
}

func parseGroups(s string) ([]string, error) {
	known := []string{check.GroupCore, check.GroupEdge}
	var groups []string
	for _, g := range strings.Split(s, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !slices.Contains(known, g) {
			return nil, fmt.Errorf("unknown group %q (want one of %s)", g, strings.Join(known, ", "))
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no groups selected")
	}
	return groups, nil
}
