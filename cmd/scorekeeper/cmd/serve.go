package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/ai"
	"github.com/solatis/scorekeeper/internal/core/api"
	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/core/logging"
	"github.com/solatis/scorekeeper/internal/core/metrics"
	"github.com/solatis/scorekeeper/internal/core/server"
	"github.com/solatis/scorekeeper/internal/core/store"
	"github.com/solatis/scorekeeper/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC scoring API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("http-port", 5000, "HTTP server port")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
	serveCmd.Flags().Bool("seed", true, "seed default patient fields into an empty registry")
}

// newEngine builds the rules engine, attaching the AI structured parser
// when an API key is configured.
func newEngine(cfg *config.Config, logger zerolog.Logger, recorder rules.Recorder) (*rules.Engine, *ai.Client, error) {
	opts := []rules.Option{}
	if recorder != nil {
		opts = append(opts, rules.WithRecorder(recorder))
	}

	var client *ai.Client
	if cfg.AI.Enabled() {
		var err error
		client, err = ai.NewClient(cfg.AI, logging.Component(logger, "ai"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create AI client: %w", err)
		}
		opts = append(opts, rules.WithStructuredParser(ai.NewParser(client)))
	} else {
		logger.Warn().Msg("no AI API key configured; natural language parsing and chat disabled")
	}

	return rules.NewEngine(logging.Component(logger, "rules"), opts...), client, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	database, queries, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := db.MigrateUp(database); err != nil {
			return err
		}
	}
	if err := requireMigrated(database); err != nil {
		return err
	}

	registry := store.New(queries, logging.Component(logger, "store"))
	if seed, _ := cmd.Flags().GetBool("seed"); seed {
		n, err := registry.SeedDefaults(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to seed patient fields: %w", err)
		}
		if n > 0 {
			logger.Info().Int("fields", n).Msg("seeded default patient fields")
		}
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	authenticator := auth.NewAuthenticator(secrets, queries)
	if !authenticator.Enabled() {
		logger.Warn().Msg("no HMAC secrets configured (set SK_HMAC_SECRET); write routes are unauthenticated")
	}

	collector := metrics.NewCollector(nil)
	engine, client, err := newEngine(cfg, logger, collector)
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithStore(registry),
		api.WithAuthenticator(authenticator),
		api.WithMetrics(collector),
		api.WithHealthCheck(database.PingContext),
		api.WithRequestTimeout(cfg.HTTP.RequestTimeout),
	}
	if client != nil {
		opts = append(opts, api.WithAssistant(ai.NewAssistant(client)))
	}

	service, err := api.NewService(engine, logging.Component(logger, "api"), opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg.HTTP, service.Handler(), logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var grpcServer *server.GRPCServer
	if cfg.GRPC.Enabled {
		grpcServer, err = server.NewGRPCServer(cfg.GRPC, service, authenticator, logging.Component(logger, "grpc"))
		if err != nil {
			return fmt.Errorf("failed to create gRPC server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", Version).Str("http", cfg.HTTP.Addr()).Bool("grpc", cfg.GRPC.Enabled).Msg("starting scorekeeper")

	errChan := make(chan error, 2)
	go func() { errChan <- httpServer.Start(ctx) }()
	if grpcServer != nil {
		go func() { errChan <- grpcServer.Start(ctx) }()
	}

	var runErr error
	select {
	case runErr = <-errChan:
		logger.Error().Err(runErr).Msg("server stopped")
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown")
	}
	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("gRPC shutdown")
		}
	}
	return runErr
}
