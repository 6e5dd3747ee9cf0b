/*
main.go - Application entry point

PURPOSE:
  Starts the arena ledger HTTP server, or applies database migrations.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve     Run the HTTP API (default when no command is given)
  migrate   Apply pending migrations and print the schema version

STARTUP SEQUENCE (serve):
  1. Load config (.env, ARENA_* variables, then flags)
  2. Open SQLite store (migrations run on open)
  3. Build engine with logger and Prometheus metrics
  4. Start the audit scheduler
  5. Configure router and start the HTTP server

FLAGS:
  --port    HTTP server port (overrides ARENA_PORT)
  --db      SQLite database path (overrides ARENA_DB_PATH)
            Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (ARENA_SHUTDOWN_TIMEOUT)
  3. Stop the audit scheduler
  4. Close database connection

EXAMPLES:
  ./server serve --db=./data/arena.db
  ./server serve --db=":memory:" --port=3000
  ./server migrate --db=./data/arena.db

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/warp/arena-ledger/api"
	"github.com/warp/arena-ledger/config"
	"github.com/warp/arena-ledger/ledger"
	"github.com/warp/arena-ledger/metrics"
	"github.com/warp/arena-ledger/store/sqlite"
)

var (
	port   int
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "arena-server",
	Short: "Match ledger and player economy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return migrate(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port (overrides ARENA_PORT)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides ARENA_DB_PATH)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

func serve(cfg config.Config) error {
	logger := cfg.NewLogger(os.Stderr)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	engine := ledger.NewEngine(store,
		ledger.WithLogger(logger.WithPrefix("ledger")),
		ledger.WithMetrics(metrics.NewService()),
		ledger.WithMaxRetries(cfg.MaxRetries),
	)

	auditor, err := api.NewAuditor(engine, logger.WithPrefix("audit"), cfg.AuditInterval)
	if err != nil {
		return fmt.Errorf("create audit scheduler: %w", err)
	}
	if err := auditor.Start(); err != nil {
		return fmt.Errorf("start audit scheduler: %w", err)
	}
	defer auditor.Stop()

	handler := api.NewHandler(engine, logger.WithPrefix("http"))
	handler.Auditor = auditor
	handler.Resetter = store

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Metrics:        metrics.NewMetricsHandler(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func migrate(ctx context.Context, cfg config.Config) error {
	logger := cfg.NewLogger(os.Stderr)

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := sqlite.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := sqlite.SchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("migrations applied", "count", len(applied), "version", version)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}
