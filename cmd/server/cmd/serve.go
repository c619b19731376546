package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api"
	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host        string
	port        int
	autoMigrate bool
}

func newServeCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RSVP HTTP server",
		Long: `Start the RSVP HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Apply pending schema migrations unless --migrate=false
- Start the notification and capacity audit workers when jobs are enabled
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  rsvp serve

  # Start on a specific host and port
  rsvp serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  rsvp serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	cmd.Flags().BoolVar(&opts.autoMigrate, "migrate", true, "apply pending database migrations before serving")
	return cmd
}

func runServer(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting RSVP server")
	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if opts.autoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := metrics.RegisterDBCollector(pool); err != nil {
		logger.Warn().Err(err).Msg("database pool metrics unavailable")
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	accounts := users.NewService(repo.Users(), tokens, cfg.Auth.BcryptCost, logger)

	var (
		riverClient *river.Client[pgx.Tx]
		jobStatus   handlers.JobQueueStatus
		eventsRepo  = repo
	)
	if cfg.Jobs.Enabled {
		riverClient, err = newRiverClient(ctx, cfg, pool, repo, accounts, logger)
		if err != nil {
			return err
		}
		eventsRepo = repo.WithOutbox(jobs.NewNotificationQueue(riverClient, cfg.Jobs.NotificationMaxAttempts))
		jobStatus = repo
	} else {
		logger.Warn().Msg("background jobs disabled, registration notifications will not be sent")
	}

	eventsService := events.NewService(eventsRepo.Events(), accounts, logger)
	health := handlers.NewHealthChecker(repo, repo, jobStatus, Version, GitCommit)

	router := api.NewRouter(cfg, logger, api.Services{
		Events:        eventsService,
		Accounts:      accounts,
		Authenticator: accounts,
		Health:        health,
	}, api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate})
	defer router.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // Total time to write response
		ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
	}

	if riverClient != nil {
		// River stops hard when its start context ends, so it gets its own
		// context and is drained with Stop during shutdown.
		if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return gracefulShutdown(server, riverClient, logger)
	})

	return g.Wait()
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 && int32(cfg.MaxIdle) <= poolCfg.MaxConns {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func newRiverClient(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, repo *postgres.Repository, accounts *users.Service, logger zerolog.Logger) (*river.Client[pgx.Tx], error) {
	if err := jobs.MigrateUp(ctx, pool); err != nil {
		return nil, err
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}

	slogLogger := config.NewSlogLogger(cfg.Logging)
	workers := jobs.NewWorkers(jobs.WorkerDeps{
		Users:   accounts,
		Mailer:  mailer,
		Auditor: repo.Audit(),
		Logger:  slogLogger,
	})

	client, err := jobs.NewClient(pool, workers, slogLogger,
		[]rivertype.Hook{metrics.NewRiverMetricsHook()},
		jobs.NewPeriodicJobs(cfg.Jobs.CapacityAuditInterval),
		jobs.ClientOptions{
			NotificationWorkers:     cfg.Jobs.NotificationWorkers,
			NotificationMaxAttempts: cfg.Jobs.NotificationMaxAttempts,
		})
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}
	return client, nil
}

func gracefulShutdown(server *http.Server, riverClient *river.Client[pgx.Tx], logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs error
	if err := server.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if riverClient != nil {
		if err := riverClient.Stop(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("river shutdown: %w", err))
		} else {
			logger.Info().Msg("river workers stopped")
		}
	}
	if errs != nil {
		logger.Error().Err(errs).Msg("shutdown error")
		return errs
	}

	logger.Info().Msg("server stopped")
	return nil
}
