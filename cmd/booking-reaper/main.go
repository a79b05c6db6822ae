package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/insominiac/dancemvp-backend/internal/config"
	"github.com/insominiac/dancemvp-backend/internal/database"
	"github.com/insominiac/dancemvp-backend/internal/logger"
	"github.com/insominiac/dancemvp-backend/internal/metrics"
	"github.com/insominiac/dancemvp-backend/internal/repository"
	"github.com/insominiac/dancemvp-backend/internal/service"
	"github.com/insominiac/dancemvp-backend/internal/worker"
)

// Standalone reaper for deployments that run the scan outside the API
// process. One instance is enough; CancelPending is conditional, so
// overlapping reapers cannot double-cancel.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name + "-reaper",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	ctx := context.Background()

	if err := metrics.Init(); err != nil {
		appLog.Warn("metrics init failed", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   false,
	})
	if err != nil {
		appLog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	var eventPublisher service.EventPublisher
	if cfg.Kafka.Enabled {
		eventPublisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ServiceName: cfg.App.Name + "-reaper",
			ClientID:    cfg.Kafka.ClientID + "-reaper",
		})
		if err != nil {
			appLog.Warn("kafka connection failed, using no-op publisher", zap.Error(err))
			eventPublisher = service.NewNoOpEventPublisher()
		}
	} else {
		eventPublisher = service.NewNoOpEventPublisher()
	}
	defer eventPublisher.Close()

	reaper := worker.NewReaper(
		repository.NewPostgresBookingRepository(db.Pool()),
		repository.NewPostgresTransactionRepository(db.Pool()),
		eventPublisher,
		&worker.ReaperConfig{
			ScanInterval: cfg.Booking.ReaperScanInterval,
			SessionTTL:   cfg.Booking.SessionTTL,
			BatchSize:    cfg.Booking.ReaperBatchSize,
		},
	)
	if err := reaper.Start(ctx); err != nil {
		appLog.Fatal("reaper start failed", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	reaper.Stop()
	appLog.Info("reaper exited gracefully")
}
