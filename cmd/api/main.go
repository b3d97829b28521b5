package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/psychometric-api/api/swagger"
	"github.com/noah-isme/psychometric-api/internal/handler"
	"github.com/noah-isme/psychometric-api/internal/middleware"
	"github.com/noah-isme/psychometric-api/internal/repository"
	"github.com/noah-isme/psychometric-api/internal/service"
	"github.com/noah-isme/psychometric-api/pkg/cache"
	"github.com/noah-isme/psychometric-api/pkg/config"
	"github.com/noah-isme/psychometric-api/pkg/database"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/events"
	"github.com/noah-isme/psychometric-api/pkg/export"
	"github.com/noah-isme/psychometric-api/pkg/jobs"
	"github.com/noah-isme/psychometric-api/pkg/llm"
	"github.com/noah-isme/psychometric-api/pkg/logger"
	"github.com/noah-isme/psychometric-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/psychometric-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/psychometric-api/pkg/middleware/requestid"
	"github.com/noah-isme/psychometric-api/pkg/payment"
	"github.com/noah-isme/psychometric-api/pkg/response"
	"github.com/noah-isme/psychometric-api/pkg/storage"
)

// @title Psychometric Assessment API
// @version 1.0.0
// @description Assessments, learning-profile reports and school rosters
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Migrations.RunOnStart {
		migrator, err := database.NewMigrator(cfg.Database)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, stats caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, cfg.Redis.KeyPrefix, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			checks["redis"] = repo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cfg.Stats.CacheEnabled && cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	parentRepo := repository.NewParentRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	reportRepo := repository.NewReportRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	store, downloads, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	var mailer mail.Sender = mail.NewLogSender(logr)
	if cfg.Mail.SendGridAPIKey != "" {
		mailer = mail.NewSendGridSender(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	}

	var publisher events.Publisher = events.NewNopPublisher(logr)
	if cfg.Events.AMQPURL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey, logr)
		if err != nil {
			logr.Warn("rabbitmq unavailable, report events disabled", zap.Error(err))
		} else {
			publisher = rabbit
		}
	}
	defer publisher.Close() //nolint:errcheck

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	identitySvc := service.NewIdentityService(studentRepo, parentRepo, schoolRepo, logr)
	statsSvc := service.NewStatsService(statsRepo, parentRepo, cacheSvc, logr, service.StatsServiceConfig{CacheTTL: cfg.Stats.CacheTTL})
	assessmentSvc := service.NewAssessmentService(assessmentRepo, userRepo, validate, logr)

	deliverySvc := service.NewReportDeliveryService(reportRepo, studentRepo, assessmentRepo, parentRepo,
		export.NewPDFExporter(), store, mailer, publisher, metrics, logr)
	deliveryQueue := jobs.NewQueue("report-delivery", deliverySvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Delivery.Workers,
		BufferSize: cfg.Delivery.BufferSize,
		MaxRetries: cfg.Delivery.Retries,
		RetryDelay: cfg.Delivery.RetryDelay,
		JobTimeout: cfg.Delivery.JobTimeout,
		Logger:     logr,
		Observer:   deliverySvc.Observe,
	})
	deliveryQueue.Start(context.WithoutCancel(ctx))
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := deliveryQueue.Stop(drainCtx); err != nil {
			logr.Warn("report delivery queue not drained", zap.Error(err))
		}
	}()

	generator := service.NewReportGenerator(llm.NewOpenAIClient(cfg.LLM), validate, metrics, logr, cfg.LLM.Timeout)
	reportDeps := service.ReportServiceDeps{
		Reports:   reportRepo,
		Responses: submissionRepo,
		Identity:  identitySvc,
		Students:  studentRepo,
		Children:  parentRepo,
		Guard:     assessmentSvc,
		Generator: generator,
		Queue:     deliveryQueue,
		Archive:   deliverySvc,
		Audit:     userRepo,
		Metrics:   metrics,
		Logger:    logr,
	}
	if downloads != nil {
		reportDeps.Downloads = downloads
	}
	reportSvc := service.NewReportService(reportDeps)
	submissionSvc := service.NewSubmissionService(submissionRepo, identitySvc, assessmentSvc, statsSvc, reportSvc, metrics, validate, logr,
		service.SubmissionConfig{ExpiryTTL: cfg.Assessments.ExpiryTTL, SweepInterval: cfg.Assessments.SweepInterval})
	submissionSvc.StartExpirySweep(ctx)

	rosterSvc := service.NewRosterService(userRepo, parentRepo, studentRepo, identitySvc, statsSvc, mailer, validate, logr, service.RosterServiceConfig{})
	parentSvc := service.NewParentService(parentRepo, studentRepo, identitySvc, userRepo, cacheSvc, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, payment.NewMidtransGateway(cfg.Payments.MidtransServerKey, cfg.Payments.Production),
		identitySvc, userRepo, statsSvc, validate, logr, service.PaymentServiceConfig{ActivationFee: cfg.Payments.ActivationFee})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.FromContext(c, logr).Error("panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		response.Error(c, appErrors.ErrInternal)
	}))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Assessment: handler.NewAssessmentHandler(assessmentSvc, submissionSvc, reportSvc, identitySvc),
		Report:     handler.NewReportHandler(reportSvc),
		Stats:      handler.NewStatsHandler(statsSvc, identitySvc),
		Roster:     handler.NewRosterHandler(rosterSvc),
		Parent:     handler.NewParentHandler(parentSvc),
		Payment:    handler.NewPaymentHandler(paymentSvc),
		Metrics:    handler.NewMetricsHandler(metrics, checks),
	}, authSvc, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newObjectStore picks the PDF archive backend. The second value serves signed local downloads and is nil for MinIO.
func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, *storage.LocalStorage, error) {
	if cfg.Storage.Driver == config.StorageDriverMinIO {
		store, err := storage.NewMinIOStorage(ctx, storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
			URLTTL:    cfg.Storage.SignedURLTTL,
		})
		return store, nil, err
	}
	signer := storage.NewDownloadSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	local, err := storage.NewLocalStorage(cfg.Storage.LocalDir, signer, cfg.APIPrefix+"/downloads")
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}
