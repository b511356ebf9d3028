// dispatchd runs the dispatch network daemon: the agent coordinator
// and the geo service catalog, with Prometheus metrics, health and
// stats endpoints, and optional Redis snapshot persistence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shorelinehq/dispatch/catalog"
	"github.com/shorelinehq/dispatch/config"
	"github.com/shorelinehq/dispatch/dispatch"
	"github.com/shorelinehq/dispatch/identity"
	"github.com/shorelinehq/dispatch/internal/metrics"
	"github.com/shorelinehq/dispatch/store"
	"github.com/shorelinehq/dispatch/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)

	minter := identity.NewBreakerMinter(identity.NewLocalMinter(), cfg.Identity, logger)
	coordinator := dispatch.NewCoordinator(&cfg.Dispatch, minter, logger,
		dispatch.WithMetrics(collector))
	cat := catalog.NewCatalog(coordinator, minter, logger, catalog.WithMetrics(collector))

	var st *store.Store
	if cfg.Redis.Enabled {
		var err error
		st, err = store.NewStore(cfg.Redis.Config, logger)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := restoreState(ctx, st, coordinator, logger); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newHandler(coordinator, cat, st),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st != nil {
			if err := st.SaveNetwork(shutdownCtx, coordinator.Snapshot()); err != nil {
				logger.Error("final snapshot failed", zap.Error(err))
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	if st != nil && cfg.Redis.SnapshotInterval > 0 {
		g.Go(func() error {
			return snapshotLoop(ctx, st, coordinator, cfg.Redis.SnapshotInterval, logger)
		})
	}

	return g.Wait()
}

// restoreState loads the last snapshot into a fresh coordinator. A
// missing snapshot means first boot and an empty network.
func restoreState(ctx context.Context, st *store.Store, coordinator *dispatch.Coordinator, logger *zap.Logger) error {
	snap, err := st.LoadNetwork(ctx)
	if types.IsNotFound(err) {
		logger.Info("no stored snapshot, starting empty")
		return nil
	}
	if err != nil {
		return err
	}
	return coordinator.Restore(snap)
}

// snapshotLoop periodically flushes network state to the store.
func snapshotLoop(ctx context.Context, st *store.Store, coordinator *dispatch.Coordinator, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := st.SaveNetwork(ctx, coordinator.Snapshot()); err != nil {
				logger.Error("periodic snapshot failed", zap.Error(err))
			}
		}
	}
}

// newHandler builds the daemon's HTTP surface: metrics, health, and
// read-only stats.
func newHandler(coordinator *dispatch.Coordinator, cat *catalog.Catalog, st *store.Store) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				http.Error(w, "store unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"network":  coordinator.GetNetworkStats(),
			"services": cat.GetServiceStats(),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return mux
}
