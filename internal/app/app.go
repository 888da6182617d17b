// Package app собирает витрину: хранилище, сервисы, HTTP API, gRPC health и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/teashop/internal/health"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/cart"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/teashop/internal/service/notify"
	"github.com/vladislavdragonenkov/teashop/internal/service/outbox"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
	"github.com/vladislavdragonenkov/teashop/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/teashop/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	pricing, err := cfg.pricingRules()
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	if cfg.SeedDemoCatalog {
		if err := seedDemoCatalog(ctx, deps.tx, time.Now().UTC()); err != nil {
			return err
		}
		logger.Info("demo catalog seeded")
	}

	// Уведомления уходят через outbox: сбой брокера не влияет на оформление заказа.
	notifier := notify.NewOutboxNotifier(deps.outboxRepo, logger.WithField("component", "notifier"))

	checkoutSvc := checkout.NewService(deps.tx, newGateway(cfg, logger), checkout.Config{
		Pricing:              pricing,
		AmountToleranceMinor: cfg.AmountToleranceMinor,
		KeySecret:            cfg.RazorpayKeySecret,
	},
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithNotifier(notifier),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
	)
	cartSvc := cart.NewService(deps.tx, pricing, cart.WithLogger(logger.WithField("component", "cart")))
	reconciler := webhook.NewReconciler(deps.tx, checkoutSvc.Ledger(), webhook.Config{
		WebhookSecret:        cfg.RazorpayWebhookSecret,
		AmountToleranceMinor: cfg.AmountToleranceMinor,
		DedupTTL:             cfg.WebhookDedupTTL,
		ProcessingLease:      cfg.WebhookProcessingLease,
	},
		webhook.WithLogger(logger.WithField("component", "webhook")),
		webhook.WithIdempotency(deps.idempotencyRepo),
		webhook.WithNotifier(notifier),
		webhook.WithMetrics(metrics.NewWebhookMetrics()),
	)

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)
	publisher, dlqPublisher := outboxPublishers(kafkaProducer, cfg.NotificationsTopic, logger)

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer shutdownWorkers(cancelWorkers, &workers, logger)

	outboxWorker := outbox.NewWorker(deps.outboxRepo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(2)
	go func() {
		defer workers.Done()
		outboxWorker.Run(workersCtx)
	}()
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workersCtx)
	}()

	build := version.Current()
	healthHandler := healthcheck.NewHandler(healthcheck.BuildInfo{
		Service: version.Service,
		Version: build.Version,
		Commit:  build.Commit,
	})
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxAge))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, healthServer := newGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.NewServer(deps.tx, checkoutSvc, cartSvc, reconciler,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithMetrics(metrics.NewHTTPMetrics()),
	)
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.WithField("version", build.Version).Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	return runErr
}

// newGRPCServer поднимает стандартный gRPC health сервис и reflection с метриками go-grpc-prometheus.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(version.Service, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register reflection service for grpcurl
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// shutdownWorkers останавливает фоновые воркеры и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, workers *sync.WaitGroup, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if workers == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer запускает /metrics и health-пробы на отдельном порту.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
