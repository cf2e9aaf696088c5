package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dealroom-backend/api/controllers"
	"github.com/angelmondragon/dealroom-backend/api/routes"
	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/events"
	"github.com/angelmondragon/dealroom-backend/internal/feepolicies"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rights"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/internal/settlements"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/migrate"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := metrics.NewRegistry()
	workflowMetrics := metrics.NewWorkflowMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	deps, err := buildServices(cfg, logg, dbClient, workflowMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(routes.RouterParams{
		Config: cfg,
		Logger: logg,
		Readiness: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Idempotency:   redisClient,
		RateLimits:    redisClient,
		Gatherer:      registry,
		HTTPMetrics:   httpMetrics,
		Rooms:         deps.rooms,
		Offers:        deps.offers,
		Signatures:    deps.signatures,
		Settlements:   deps.settlements,
		Audit:         deps.audit,
		Notifications: deps.notifications,
		FeePolicies:   deps.feePolicies,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

type services struct {
	rooms         rooms.Service
	offers        offers.Service
	signatures    signatures.Service
	settlements   settlements.Service
	audit         audit.Service
	notifications notifications.Service
	feePolicies   feepolicies.Service
}

// buildServices wires the deal-room workflow. The settlement cascade is
// registered on the in-process bus that the signature tracker dispatches to.
func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, workflowMetrics *metrics.WorkflowMetrics) (*services, error) {
	conn := dbClient.DB()
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)

	notifyRepo := notifications.NewRepository(conn)
	dispatcher, err := notifications.NewDispatcher(notifyRepo, logg, workflowMetrics)
	if err != nil {
		return nil, err
	}
	notificationsSvc, err := notifications.NewService(notifyRepo)
	if err != nil {
		return nil, err
	}
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	rightsSvc, err := rights.NewService(rights.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	feeSvc, err := feepolicies.NewService(feepolicies.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	roomSvc, err := rooms.NewService(rooms.ServiceParams{
		Repo:     rooms.NewRepository(conn),
		Tx:       dbClient,
		Outbox:   publisher,
		Audit:    auditSvc,
		Rights:   rightsSvc,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  workflowMetrics,
	})
	if err != nil {
		return nil, err
	}

	offerSvc, err := offers.NewService(offers.ServiceParams{
		Repo:     offers.NewRepository(conn),
		Rooms:    roomSvc,
		Tx:       dbClient,
		Outbox:   publisher,
		Audit:    auditSvc,
		Rights:   rightsSvc,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  workflowMetrics,
	})
	if err != nil {
		return nil, err
	}

	settlementRepo := settlements.NewRepository(conn)
	bus := events.NewBus()
	cascade, err := settlements.NewCascade(settlements.CascadeParams{
		Repo:     settlementRepo,
		Rooms:    roomSvc,
		Offers:   offerSvc,
		Fees:     feeSvc,
		Audit:    auditSvc,
		Outbox:   publisher,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  workflowMetrics,
		Config:   cfg.Settlement,
	})
	if err != nil {
		return nil, err
	}
	cascade.Register(bus)

	settlementSvc, err := settlements.NewService(settlements.ServiceParams{
		Repo:     settlementRepo,
		Rooms:    roomSvc,
		Tx:       dbClient,
		Outbox:   publisher,
		Audit:    auditSvc,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  workflowMetrics,
	})
	if err != nil {
		return nil, err
	}

	signatureSvc, err := signatures.NewService(signatures.ServiceParams{
		Repo:     signatures.NewRepository(conn),
		Rooms:    roomSvc,
		Offers:   offerSvc,
		Tx:       dbClient,
		Outbox:   publisher,
		Audit:    auditSvc,
		Events:   bus,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  workflowMetrics,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		rooms:         roomSvc,
		offers:        offerSvc,
		signatures:    signatureSvc,
		settlements:   settlementSvc,
		audit:         auditSvc,
		notifications: notificationsSvc,
		feePolicies:   feeSvc,
	}, nil
}
