package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/realtime"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

type repositories struct {
	users         repository.UserRepository
	tickets       repository.TicketRepository
	notifications repository.NotificationRepository
	messages      repository.MessageRepository
}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var repos repositories
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = repositories{
			users:         repository.NewUserRepository(pg.Pool),
			tickets:       repository.NewTicketRepository(pg.Pool),
			notifications: repository.NewNotificationRepository(pg.Pool),
			messages:      repository.NewMessageRepository(pg.Pool),
		}
	} else {
		store := memory.NewStore()
		repos = repositories{
			users:         store.Users(),
			tickets:       store.Tickets(),
			notifications: store.Notifications(),
			messages:      store.Messages(),
		}
	}

	hub := realtime.NewHub(logger.Named("hub"), metrics)
	var (
		publisher   events.Publisher = hub
		redis       *persistence.Redis
		relayDone   <-chan struct{}
		forwardDone <-chan struct{}
	)
	if cfg.Realtime.RelayEnabled {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		relay := realtime.NewRedisRelay(hub, redis.Client, cfg.Realtime.RelayChannel, logger.Named("relay"))
		publisher = relay
		relayDone = worker.StartRelayWorker(ctx, relay, logger)
		forwardDone = worker.StartRelayWorker(ctx, worker.RunnerFunc(relay.Forward), logger)
	}

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{UserRepo: repos.users})
	authenticator := auth.NewAuthenticator(authService.TokenManager(), repos.users)
	seedAdmin(ctx, authService, cfg.Auth, logger)

	notificationService := service.NewNotificationService(repos.notifications, cfg.Notification)
	notifier := service.NewTicketNotifier(service.NotifierDependencies{
		UserRepo:      repos.users,
		Notifications: notificationService,
		Publisher:     publisher,
		Logger:        logger.Named("notifier"),
		Metrics:       metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repos.tickets,
		UserRepo:   repos.users,
		Notifier:   notifier,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		TicketRepo:    repos.tickets,
		MessageRepo:   repos.messages,
		UserRepo:      repos.users,
		Notifications: notificationService,
		Publisher:     publisher,
		Config:        cfg.Chat,
		Logger:        logger.Named("chat"),
		Metrics:       metrics,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, chatService),
		Messages:       handlers.NewMessagesHandler(chatService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: auth.NewAuthMiddleware(authenticator),
		Gatherer:       registry,
	})

	gateway := realtime.NewGateway(realtime.GatewayDependencies{
		Hub:           hub,
		Authenticator: authenticator,
		Config:        cfg.Realtime,
		Logger:        logger.Named("gateway"),
		Metrics:       metrics,
	})
	wsServer := &http.Server{
		Addr:              cfg.Realtime.Addr(),
		Handler:           gateway.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("realtime gateway listening", zap.String("addr", wsServer.Addr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("gateway listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = wsServer.Shutdown(shutdownCtx)
	cancel()
	if relayDone != nil {
		<-relayDone
		<-forwardDone
	}
}

// seedAdmin creates the first admin account when AUTH_SEED_ADMIN_* is set.
func seedAdmin(ctx context.Context, authService *service.AuthService, cfg config.AuthConfig, logger *zap.Logger) {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return
	}
	user, created, err := authService.EnsureUser(ctx, service.RegisterInput{
		Name:     cfg.SeedAdminName,
		Email:    cfg.SeedAdminEmail,
		Password: cfg.SeedAdminPassword,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		logger.Fatal("failed to seed admin", zap.Error(err))
	}
	if created {
		logger.Info("seeded admin account", zap.String("user_id", user.ID), zap.String("email", user.Email))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
