package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/api/gateway"
	httptransport "github.com/spec-kit/support-bot/internal/api/http"
	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/persistence"
	"github.com/spec-kit/support-bot/internal/platform/discord"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
	"github.com/spec-kit/support-bot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	ids, err := snowflake.NewNode(cfg.App.SnowflakeNode)
	if err != nil {
		logger.Fatal("invalid SNOWFLAKE_NODE", zap.Error(err))
	}
	clock := clockwork.NewRealClock()

	tasks := worker.NewTaskGroup(ctx, logger)
	dispatcher := events.NewAsyncDispatcher(cfg.Events.BufferSize, logger)
	dispatcher.Start()

	registry := repository.NewTicketRegistry(clock, ids)
	selections := repository.NewSelectionTable(clock, cfg.Lifecycle.SelectionTTL)
	journal := repository.NewClosureJournal(redis.Handle(), cfg.Redis.JournalKey)
	var history repository.TicketHistoryRepository
	if pg.Enabled() {
		history = repository.NewTicketHistoryRepository(pg.PoolHandle())
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}
	client := discord.NewClient(session, logger)

	gate := auth.NewGate(client, cfg.Support.ManagementRoleID)
	watchdog := worker.NewWatchdog(worker.WatchdogDependencies{
		Clock:        clock,
		Registry:     registry,
		Tasks:        tasks,
		PollInterval: cfg.Lifecycle.PollInterval,
		Timeout:      cfg.Lifecycle.InactivityTimeout,
		Logger:       logger,
	})
	scheduler := worker.NewClosureScheduler(worker.ClosureSchedulerDependencies{
		Clock:      clock,
		Registry:   registry,
		Channels:   client,
		Journal:    journal,
		Tasks:      tasks,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	ticketService := service.NewTicketService(service.TicketDependencies{
		Registry:   registry,
		Selections: selections,
		Channels:   client,
		Messenger:  client,
		Identity:   client,
		Gate:       gate,
		Watchdog:   watchdog,
		Closures:   scheduler,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     logger,
	}, service.TicketConfig{
		CategoryID:        cfg.Support.CategoryID,
		ManagementRoleID:  cfg.Support.ManagementRoleID,
		InactivityTimeout: cfg.Lifecycle.InactivityTimeout,
		ClosureDelay:      cfg.Lifecycle.ClosureDelay,
	})
	routerService := service.NewRouterService(service.RouterDependencies{
		Registry:   registry,
		Selections: selections,
		Channels:   client,
		Messenger:  client,
		Dispatcher: dispatcher,
		Clock:      clock,
		Logger:     logger,
	}, service.RouterConfig{
		StaffChannelID: cfg.Support.StaffChannelID,
		MaxReplyLength: cfg.Lifecycle.ReplyMaxLength,
	})
	auditService := service.NewAuditService(service.AuditDependencies{
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		History:    history,
		Redis:      redis.Handle(),
		Registry:   registry,
		Selections: selections,
	}, cfg.Redis)

	worker.StartAuditWorker(auditService)
	worker.StartSelectionJanitor(tasks, clock, selections, cfg.Lifecycle.SelectionTTL, metrics, logger)

	gw := gateway.New(session, gateway.NewHandler(gateway.HandlerDependencies{
		Tickets:        ticketService,
		Router:         routerService,
		Metrics:        metrics,
		Logger:         logger,
		MaxReplyLength: cfg.Lifecycle.ReplyMaxLength,
	}), cfg.Discord, logger)
	if err := gw.Start(ctx); err != nil {
		logger.Fatal("failed to start discord gateway", zap.Error(err))
	}

	if n, err := worker.SweepOrphans(ctx, journal, scheduler, logger); err != nil {
		logger.Warn("orphan sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("orphan channel teardowns re-armed", zap.Int("count", n))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, gw),
		Tickets: handlers.NewTicketsHandler(ticketService, history),
		Metrics: metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := gw.Close(); err != nil {
		logger.Warn("discord close", zap.Error(err))
	}
	// Pending teardowns are abandoned here; their journal entries are re-armed on next start.
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks did not stop in time", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("event dispatcher did not drain", zap.Error(err))
	}
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
