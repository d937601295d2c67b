package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/docsight/docsight/internal/agent"
	"github.com/docsight/docsight/internal/api/v1"
	"github.com/docsight/docsight/internal/config"
	"github.com/docsight/docsight/internal/executor"
	"github.com/docsight/docsight/internal/notify"
	"github.com/docsight/docsight/internal/reasoning"
	"github.com/docsight/docsight/internal/server"
	"github.com/docsight/docsight/internal/store/memory"
	redisstore "github.com/docsight/docsight/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("DOCSIGHT_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("DOCSIGHT_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to Redis for progress pub/sub.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Connect to PostgreSQL for the query executor; optional. Without it,
	// insight runs still work but every query degrades to an error row.
	var pool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		poolCfg, cfgErr := pgxpool.ParseConfig(cfg.Database.DSN)
		if cfgErr != nil {
			return fmt.Errorf("database config: %w", cfgErr)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConns) //nolint:gosec // validated >= 1

		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("database connect: %w", err)
		}
		defer pool.Close()

		if err = pool.Ping(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
	} else {
		log.Warn().Msg("DOCSIGHT_DB_DSN not set; query executor disabled")
	}

	// In-memory session/message store; sessions do not survive restarts.
	store := memory.New()

	// Reasoning service client (chat answerer + insight planner).
	client := reasoning.NewClient(cfg.Reasoning.APIKey,
		reasoning.WithBaseURL(cfg.Reasoning.BaseURL),
		reasoning.WithModel(cfg.Reasoning.Model),
		reasoning.WithTimeout(cfg.Reasoning.Timeout),
	)

	pgExec := executor.NewPostgres(pool)

	// Optional Slack notifier for completed insight reports.
	var notifier agent.Notifier
	if cfg.Slack.BotToken != "" {
		notifier = notify.NewSlackNotifier(slacklib.New(cfg.Slack.BotToken), cfg.Slack.Channel)
		log.Info().Str("channel", cfg.Slack.Channel).Msg("Slack notifications enabled")
	}

	chatOrch := agent.NewChatOrchestrator(client, store.Sessions(), store.Messages())
	insightOrch := agent.NewInsightOrchestrator(client, pgExec, store.Sessions(), store.Messages(), pubsub, notifier)

	var loader v1.TableLoader
	if pool != nil {
		loader = pgExec
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, pubsub, chatOrch, insightOrch, loader)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
