package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/classifier"
	"github.com/relaydesk/relaydesk/internal/concurrency"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/daemon"
	"github.com/relaydesk/relaydesk/internal/engine"
	"github.com/relaydesk/relaydesk/internal/pathutil"
	"github.com/relaydesk/relaydesk/internal/profile"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/sweeper"
	"github.com/relaydesk/relaydesk/internal/tool"
	"github.com/relaydesk/relaydesk/internal/tool/builtin"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestration daemon",
	Long:  `Starts the RelayDesk core as a long-running service: tiered state store, tool registry, routing engine, idle sweeper, and the metrics/health endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(parent context.Context) error {
	sig := NewSignalHandler(parent)
	sig.Start()
	defer sig.Stop()
	ctx := sig.ctx

	// Storage tiers. Badger is optional; SQLite is not.
	sqlitePath, err := pathutil.Expand(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("resolve sqlite path: %w", err)
	}
	durable, err := store.OpenSQLite(sqlitePath)
	if err != nil {
		return fmt.Errorf("open durable store: %w", err)
	}

	var shared *store.BadgerCache
	if cfg.Store.BadgerPath != "" || cfg.Store.BadgerInMemory {
		badgerPath, err := pathutil.Expand(cfg.Store.BadgerPath)
		if err != nil {
			return fmt.Errorf("resolve badger path: %w", err)
		}
		shared, err = store.OpenBadger(badgerPath, cfg.Store.BadgerInMemory)
		if err != nil {
			slog.Warn("Shared cache unavailable, serving from durable store only", "error", err)
		}
	}
	tiered := store.NewTiered(durable, shared)
	defer tiered.Close()

	// Tool registry and dispatcher.
	registry := tool.NewRegistry()
	if err := builtin.RegisterDefaults(registry, cfg.Tools); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	retryBase, err := config.DurationOrDefault(cfg.Tools.RetryBase, config.DefaultToolRetryBase)
	if err != nil {
		return err
	}
	retryCap, err := config.DurationOrDefault(cfg.Tools.RetryCap, config.DefaultToolRetryCap)
	if err != nil {
		return err
	}
	dispatcher := tool.NewDispatcher(registry, retryBase, retryCap)

	// Collaborators.
	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}
	profiles, err := profile.NewHTTP(cfg.Profile)
	if err != nil {
		return fmt.Errorf("build profile provider: %w", err)
	}
	staleness, err := config.DurationOrDefault(cfg.Profile.Staleness, config.DefaultProfileStaleness)
	if err != nil {
		return err
	}
	idleTimeout, err := config.DurationOrDefault(cfg.Store.IdleTimeout, config.DefaultStoreIdleTimeout)
	if err != nil {
		return err
	}

	policy, err := engine.NewPolicy(cfg.Routing)
	if err != nil {
		return fmt.Errorf("build routing policy: %w", err)
	}

	eng := engine.New(engine.Options{
		Store:            tiered,
		Dispatcher:       dispatcher,
		Classifier:       cls,
		Profiles:         profiles,
		Policy:           policy,
		IdleTimeout:      idleTimeout,
		ProfileStaleness: staleness,
	})

	// Idle reclamation.
	sw, err := sweeper.New(tiered, cfg.Sweeper, cfg.Store)
	if err != nil {
		return fmt.Errorf("build sweeper: %w", err)
	}
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer sw.Stop()

	// Engine API, metrics, and health on one listener. The external
	// transport layer fronts this endpoint.
	mux := http.NewServeMux()
	daemon.NewServer(eng, tiered).Routes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}
	concurrency.SafeGo(func() {
		slog.Info("Metrics endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics endpoint failed", "error", err)
		}
	}, nil)

	slog.Info("RelayDesk daemon started",
		"tools", registry.Names(),
		"classifier", cfg.Classifier.Provider,
		"sqlite_path", cfg.Store.SQLitePath)

	<-ctx.Done()

	shutdownTimeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultShutdownTimeout)
	if err != nil {
		shutdownTimeout = 0
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Metrics endpoint shutdown failed", "error", err)
	}

	slog.Info("RelayDesk daemon stopped")
	return nil
}
