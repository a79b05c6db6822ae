package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/config"
	"github.com/insominiac/dancemvp-backend/internal/database"
	"github.com/insominiac/dancemvp-backend/internal/domain"
	"github.com/insominiac/dancemvp-backend/internal/email"
	"github.com/insominiac/dancemvp-backend/internal/gateway"
	"github.com/insominiac/dancemvp-backend/internal/handler"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/middleware"
	appredis "github.com/insominiac/dancemvp-backend/internal/redis"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/service"
	"github.com/insominiac/dancemvp-backend/internal/telemetry"
	"github.com/insominiac/dancemvp-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting booking engine",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warn("telemetry init failed, tracing disabled", zap.Error(err))
	}
	defer telemetry.Shutdown(ctx)

	if err := metrics.Init(); err != nil {
		appLog.Warn("metrics init failed", zap.Error(err))
	}

	// Storage. Postgres is the normal backend; the in-memory store keeps
	// local development working without a database.
	var (
		bookingRepo  repository.BookingRepository
		txnRepo      repository.TransactionRepository
		catalogRepo  repository.CatalogRepository
		waitlistRepo repository.WaitlistRepository
		refundRepo   repository.RefundRepository
		auditRepo    repository.AuditLogRepository
		webhookRepo  repository.WebhookEventRepository
		db           *database.PostgresDB
	)

	db, err = database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		if cfg.IsProduction() {
			appLog.Fatal("database connection failed", zap.Error(err))
		}
		appLog.Warn("database connection failed, using in-memory store", zap.Error(err))
		store := repository.NewMemoryStore()
		bookingRepo = store.Bookings()
		txnRepo = store.Transactions()
		catalogRepo = store.Catalog()
		waitlistRepo = store.Waitlist()
		refundRepo = store.Refunds()
		auditRepo = store.AuditLogs()
		webhookRepo = store.WebhookEvents()
	} else {
		defer db.Close()
		appLog.Info("database connected")
		bookingRepo = repository.NewPostgresBookingRepository(db.Pool())
		txnRepo = repository.NewPostgresTransactionRepository(db.Pool())
		catalogRepo = repository.NewPostgresCatalogRepository(db.Pool())
		waitlistRepo = repository.NewPostgresWaitlistRepository(db.Pool())
		refundRepo = repository.NewPostgresRefundRepository(db.Pool())
		auditRepo = repository.NewPostgresAuditLogRepository(db.Pool())
		webhookRepo = repository.NewPostgresWebhookEventRepository(db.Pool())
	}

	// Redis backs the idempotency middleware and the email queue.
	redisClient, err := appredis.NewClient(ctx, &appredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
	})
	if err != nil {
		appLog.Warn("redis connection failed, idempotency and email disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("redis connected")
	}

	// Kafka publisher with no-op fallback.
	var eventPublisher service.EventPublisher
	if cfg.Kafka.Enabled {
		eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: cfg.App.Name,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("kafka connection failed, using no-op publisher", zap.Error(err))
			eventPublisher = service.NewNoOpEventPublisher()
		} else {
			appLog.Info("kafka event publisher connected")
		}
	} else {
		eventPublisher = service.NewNoOpEventPublisher()
	}
	defer eventPublisher.Close()

	// Email queue worker.
	var mailer email.Mailer = email.NewNoOpMailer()
	if cfg.Email.Enabled && redisClient != nil {
		emailSvc := email.New(redisClient.Client(), &email.Config{
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
			SMTPHost:  cfg.Email.SMTPHost,
			SMTPPort:  strconv.Itoa(cfg.Email.SMTPPort),
			SMTPUser:  cfg.Email.SMTPUser,
			SMTPPass:  cfg.Email.SMTPPass,
		})
		workerCtx, stopWorker := context.WithCancel(ctx)
		defer stopWorker()
		go emailSvc.Start(workerCtx)
		mailer = emailSvc
		appLog.Info("email worker started")
	}

	gateways := buildGateways(cfg, appLog)

	// Services.
	checkoutService := service.NewCheckoutService(bookingRepo, txnRepo, catalogRepo, gateways, eventPublisher,
		&service.CheckoutServiceConfig{
			SessionTTL:      cfg.Booking.SessionTTL,
			DefaultCurrency: cfg.Booking.DefaultCurrency,
		})
	waitlistService := service.NewWaitlistService(waitlistRepo, bookingRepo, catalogRepo, mailer, eventPublisher)
	manageService := service.NewManageService(bookingRepo, catalogRepo, refundRepo, waitlistService, mailer, eventPublisher)
	reconcileService := service.NewReconcileService(bookingRepo, txnRepo, catalogRepo, auditRepo, webhookRepo, mailer, eventPublisher)

	// Stale session reaper.
	reaper := worker.NewReaper(bookingRepo, txnRepo, eventPublisher, &worker.ReaperConfig{
		ScanInterval: cfg.Booking.ReaperScanInterval,
		SessionTTL:   cfg.Booking.SessionTTL,
		BatchSize:    cfg.Booking.ReaperBatchSize,
	})
	if err := reaper.Start(ctx); err != nil {
		appLog.Warn("reaper start failed", zap.Error(err))
	}
	defer reaper.Stop()

	// Handlers and routes.
	checkoutHandler := handler.NewCheckoutHandler(checkoutService)
	bookingHandler := handler.NewBookingHandler(checkoutService, manageService)
	waitlistHandler := handler.NewWaitlistHandler(waitlistService)
	webhookHandler := handler.NewWebhookHandler(reconcileService, gateways)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "version": cfg.App.Version}
		if db != nil {
			if err := db.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	// Booking and checkout routes require a Bearer token outside development;
	// locally the handlers fall back to the user id in the request.
	var authn gin.HandlerFunc
	if cfg.IsDevelopment() {
		appLog.Warn("development mode, JWT auth not enforced on booking routes")
	} else {
		authn = middleware.Auth(&middleware.AuthConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
		})
	}

	api := router.Group("/api")
	{
		payments := api.Group("/payments")
		{
			createSession := []gin.HandlerFunc{}
			if authn != nil {
				createSession = append(createSession, authn)
			}
			if redisClient != nil {
				createSession = append(createSession,
					middleware.Idempotency(middleware.DefaultIdempotencyConfig(redisClient.Client())))
			}
			createSession = append(createSession, checkoutHandler.CreateSession)
			payments.POST("/create-session", createSession...)

			// Webhooks authenticate by signature, never by JWT.
			payments.POST("/webhook", webhookHandler.HandleStripeWebhook)
			payments.POST("/wise-webhook", webhookHandler.HandleWiseWebhook)
		}

		bookings := api.Group("/bookings")
		{
			if authn != nil {
				bookings.Use(authn)
			}
			bookings.GET("/user", bookingHandler.GetUserBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.DELETE("/manage/:id", bookingHandler.CancelBooking)
			bookings.PATCH("/manage/:id", bookingHandler.RescheduleBooking)
		}

		waitlist := []gin.HandlerFunc{}
		if authn != nil {
			waitlist = append(waitlist, authn)
		}
		waitlist = append(waitlist, waitlistHandler.JoinWaitlist)
		api.POST("/waitlist", waitlist...)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("booking engine listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal("server forced to shutdown", zap.Error(err))
	}
	appLog.Info("server exited gracefully")
}

// buildGateways configures the payment providers. Missing credentials fall
// back to the mock gateway so the engine stays bootable in development.
func buildGateways(cfg *config.Config, appLog *logger.Logger) map[domain.Provider]gateway.PaymentGateway {
	gateways := make(map[domain.Provider]gateway.PaymentGateway)

	if cfg.Stripe.SecretKey != "" {
		gw, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
		if err != nil {
			appLog.Warn("stripe gateway init failed", zap.Error(err))
		} else {
			gateways[domain.ProviderStripe] = gw
			appLog.Info("stripe gateway configured")
		}
	}

	if cfg.Wise.APIKey != "" {
		gw, err := gateway.NewWiseGateway(&gateway.WiseGatewayConfig{
			APIKey:        cfg.Wise.APIKey,
			BaseURL:       cfg.Wise.BaseURL,
			ProfileID:     cfg.Wise.ProfileID,
			WebhookSecret: cfg.Wise.WebhookSecret,
			RecipientID:   cfg.Wise.RecipientID,
		})
		if err != nil {
			appLog.Warn("wise gateway init failed", zap.Error(err))
		} else {
			gateways[domain.ProviderWise] = gw
			appLog.Info("wise gateway configured")
		}
	}

	if len(gateways) == 0 {
		appLog.Warn("no payment providers configured, using mock gateway")
		gateways[domain.ProviderStripe] = gateway.NewMockGateway(nil)
	}
	return gateways
}
