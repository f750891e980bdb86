// wslink keeps a self-healing WebSocket connection open and bridges it to
// the terminal: each stdin line is sent as a payload and counts as user
// activity, and every inbound payload is printed (and optionally journaled).
//
// Usage: go run ./cmd/wslink -config configs/wslink.example.yaml
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wslink/internal/activity"
	"github.com/rickgao/wslink/internal/config"
	"github.com/rickgao/wslink/internal/connection"
	"github.com/rickgao/wslink/internal/database"
	"github.com/rickgao/wslink/internal/journal"
	"github.com/rickgao/wslink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wslink.example.yaml", "path to config file")
	address := flag.String("address", "", "WebSocket address (overrides connection.address)")
	verbose := flag.Bool("verbose", false, "debug logging and full payload output")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting wslink", append(version.LogAttrs(), "config", *configPath)...)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Connection.Address = *address
	}
	if cfg.Connection.Address == "" {
		logger.Error("no address configured; set connection.address or -address")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	bus := activity.NewBus(logger)

	opts := []connection.Option{
		connection.WithTransport(connection.NewWebSocketTransport(transportConfig(cfg), logger)),
	}
	if cfg.Activity.Enabled {
		opts = append(opts, connection.WithActivitySource(bus))
	}
	mgr := connection.NewManager(managerConfig(cfg), logger, opts...)

	mgr.RegisterHandler(func(payload []byte) {
		if *verbose {
			fmt.Printf("< %s\n", payload)
			return
		}
		fmt.Printf("< %d bytes\n", len(payload))
	})

	g, gctx := errgroup.WithContext(ctx)

	var (
		pool   *pgxpool.Pool
		writer *journal.Writer
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database", "url", database.Redacted(cfg.Journal.Database))
		pool, err = database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = journal.NewWriter(journalConfig(cfg), pool, logger)
		if err := writer.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare journal schema", "error", err)
			os.Exit(1)
		}
		mgr.RegisterConnHandler(writer.Record)
		g.Go(func() error { return writer.Run(gctx) })
	}

	if cfg.Health.Port > 0 {
		healthServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: createHealthHandler(mgr, bus, pool, writer),
		}
		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return healthServer.Shutdown(shutdownCtx)
		})
	}

	if err := mgr.Connect(cfg.Connection.Address); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Scanner blocks on stdin, so it stays outside the group.
	go readInput(gctx, mgr, bus, logger)

	logger.Info("wslink running",
		"instance_id", cfg.Instance.ID,
		"address", cfg.Connection.Address,
		"idle_handling", cfg.Activity.Enabled,
		"journal", cfg.Journal.Enabled,
	)

	<-gctx.Done()
	logger.Info("shutting down...")

	if err := mgr.Shutdown(); err != nil {
		logger.Warn("connection shutdown", "error", err)
	}
	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("wslink stopped")
}

// readInput sends each stdin line as a payload. Typing is user activity.
func readInput(ctx context.Context, mgr *connection.Manager, bus *activity.Bus, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		bus.Notify(activity.SignalKeyDown)

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := mgr.Send(append([]byte(nil), line...)); err != nil {
			logger.Debug("send skipped", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin read failed", "error", err)
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(mgr *connection.Manager, bus *activity.Bus, pool *pgxpool.Pool, writer *journal.Writer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := mgr.Stats()
		health.Components["connection"] = map[string]any{
			"state":              stats.StateName,
			"reconnect_attempts": stats.ReconnectAttempts,
			"user_inactive":      stats.UserInactive,
		}
		switch {
		case stats.ReconnectExhausted:
			health.Status = "unhealthy"
		case stats.State != connection.StateOpen && !stats.UserInactive:
			health.Status = "degraded"
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["journal_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["journal_db"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{
			"connection": mgr.Stats(),
			"activity":   bus.Stats(),
		}
		if writer != nil {
			out["journal"] = writer.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}
