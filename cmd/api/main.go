package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-issue-service/internal/api/http"
	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/persistence"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/repository/memory"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/worker"
)

type repositories struct {
	zones    repository.ZoneRepository
	wards    repository.WardRepository
	users    repository.UserRepository
	issues   repository.IssueRepository
	history  repository.IssueHistoryRepository
	evidence repository.EvidenceRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var statsCache service.StatsCache
	if c := persistence.NewStatsCache(redis, cfg.Redis.StatsTTL()); c != nil {
		statsCache = c
	}

	repos := buildRepositories(pg)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	clock := service.SystemClock()

	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		IssueRepo:       repos.issues,
		UserRepo:        repos.users,
		WardRepo:        repos.wards,
		EvidenceRepo:    repos.evidence,
		HistoryRepo:     repos.history,
		Dispatcher:      dispatcher,
		Cache:           statsCache,
		Clock:           clock,
		Metrics:         metrics,
		Logger:          logger,
		ConflictRetries: cfg.Policy.ConflictRetries,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Lifecycle:  lifecycleService,
		IssueRepo:  repos.issues,
		UserRepo:   repos.users,
		WardRepo:   repos.wards,
		Dispatcher: dispatcher,
		Logger:     logger,
		BulkLimit:  cfg.Policy.BulkReassignLimit,
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:        repos.users,
		WardRepo:        repos.wards,
		ZoneRepo:        repos.zones,
		Assignments:     assignmentService,
		Cache:           statsCache,
		Clock:           clock,
		Logger:          logger,
		BcryptCost:      cfg.Auth.BcryptCost,
		Deactivation:    cfg.Policy.Deactivation,
		ConflictRetries: cfg.Policy.ConflictRetries,
	})
	geoService := service.NewGeoService(service.GeoDependencies{
		ZoneRepo: repos.zones,
		WardRepo: repos.wards,
		UserRepo: repos.users,
		Cache:    statsCache,
		Clock:    clock,
		Logger:   logger,
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:    repos.issues,
		HistoryRepo:  repos.history,
		EvidenceRepo: repos.evidence,
		WardRepo:     repos.wards,
		Dispatcher:   dispatcher,
		Cache:        statsCache,
		Clock:        clock,
		Logger:       logger,
	})
	statsService := service.NewStatsService(service.StatsDependencies{
		IssueRepo: repos.issues,
		UserRepo:  repos.users,
		WardRepo:  repos.wards,
		ZoneRepo:  repos.zones,
		Cache:     statsCache,
		Clock:     clock,
		Policy:    cfg.SLA.Policy,
		Logger:    logger,
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:    repos.users,
		UserService: userService,
		Logger:      logger,
	})
	if created, err := userService.EnsureSuperAdmin(ctx, service.UserInput{
		FullName: cfg.Auth.AdminName,
		Email:    cfg.Auth.AdminEmail,
		Password: cfg.Auth.AdminPassword,
	}); err != nil {
		logger.Fatal("failed to bootstrap super admin", zap.Error(err))
	} else if created {
		logger.Info("bootstrap super admin created", zap.String("email", cfg.Auth.AdminEmail))
	}

	notificationService := service.NewNotificationService(dispatcher, nil, logger, cfg.Notification)
	notifications := worker.StartNotificationWorker(notificationService, logger)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.users)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, handlers.BackendProbes(pg, redis)...),
		Auth:   handlers.NewAuthHandler(authService),
		Users:  handlers.NewUsersHandler(userService, assignmentService, issueService),
		Geo:    handlers.NewGeoHandler(geoService),
		Issues: handlers.NewIssuesHandler(handlers.IssuesHandlerDeps{
			Issues:      issueService,
			Lifecycle:   lifecycleService,
			Assignments: assignmentService,
			Stats:       statsService,
		}),
		Stats:          handlers.NewStatsHandler(statsService),
		AuthMiddleware: authMiddleware,
		RateLimiter:    httptransport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	notifications.Stop(shutdownCtx)
}

func buildRepositories(pg *persistence.Postgres) repositories {
	pool := pg.PoolHandle()
	if pool == nil {
		store := memory.NewStore()
		return repositories{
			zones:    store.Zones(),
			wards:    store.Wards(),
			users:    store.Users(),
			issues:   store.Issues(),
			history:  store.History(),
			evidence: store.Evidence(),
		}
	}
	return repositories{
		zones:    repository.NewZoneRepository(pool),
		wards:    repository.NewWardRepository(pool),
		users:    repository.NewUserRepository(pool),
		issues:   repository.NewIssueRepository(pool),
		history:  repository.NewIssueHistoryRepository(pool),
		evidence: repository.NewEvidenceRepository(pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
