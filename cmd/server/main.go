package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-payments/internal/config"
	"github.com/iliyamo/cinema-booking-payments/internal/database"
	"github.com/iliyamo/cinema-booking-payments/internal/handler"
	"github.com/iliyamo/cinema-booking-payments/internal/metrics"
	"github.com/iliyamo/cinema-booking-payments/internal/observability"
	"github.com/iliyamo/cinema-booking-payments/internal/payment/vnpay"
	"github.com/iliyamo/cinema-booking-payments/internal/queue"
	"github.com/iliyamo/cinema-booking-payments/internal/repository"
	"github.com/iliyamo/cinema-booking-payments/internal/router"
	"github.com/iliyamo/cinema-booking-payments/internal/scheduler"
	"github.com/iliyamo/cinema-booking-payments/internal/service"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("env", cfg.Env))

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	// Redis is optional: without it the limiter and the showtime cache are skipped.
	var rdb *redis.Client
	if client, err := config.NewRedisClient(config.LoadRedisConfig()); err != nil {
		logger.Warn("redis unavailable, continuing without cache and rate limiting", zap.Error(err))
	} else {
		rdb = client
		defer rdb.Close()
	}

	gwCfg, err := cfg.Payment.Gateway()
	if err != nil {
		logger.Fatal("invalid payment configuration", zap.Error(err))
	}
	gateway, err := vnpay.New(gwCfg)
	if err != nil {
		logger.Fatal("invalid payment configuration", zap.Error(err))
	}

	store := repository.NewStore(db)
	var shows repository.ShowtimeLookup = repository.NewShowRepo(db)
	if cacheCfg := config.LoadShowtimeCacheConfig(); cacheCfg.Enabled {
		shows = repository.NewCachedShowtimes(shows, rdb, cacheCfg.TTL, cacheCfg.Prefix, logger)
	}
	seatHolds := repository.NewSeatHoldRepo(db, shows)
	users := repository.NewUserRepo(db)

	m := metrics.New()
	publisher := queue.NewPublisher(cfg.Notify, logger)
	dispatcher := service.NewDispatcher(publisher, users, m, logger)

	deps := service.Deps{
		Store:      store,
		SeatHolds:  seatHolds,
		Users:      users,
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     logger,
	}
	bookings, err := service.NewBookingService(deps, service.BookingOptions{MaxReschedules: cfg.Booking.MaxReschedules})
	if err != nil {
		logger.Fatal("booking service", zap.Error(err))
	}
	payments, err := service.NewPaymentService(deps, gateway, service.PaymentOptions{ZeroAmountThreshold: cfg.Payment.ZeroAmountThreshold})
	if err != nil {
		logger.Fatal("payment service", zap.Error(err))
	}
	refunds, err := service.NewRefundService(deps)
	if err != nil {
		logger.Fatal("refund service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var workers sync.WaitGroup

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(bookings, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			sched.Start(ctx)
		}()
	}
	if cfg.Notify.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.Notify, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(observability.RequestLogger(logger))
	e.Use(m.Middleware())

	router.Register(e, router.Deps{
		Bookings:  handler.NewBookingHandler(bookings, logger),
		Payments:  handler.NewPaymentHandler(payments, refunds, logger),
		Admin:     handler.NewAdminHandler(bookings, refunds, logger),
		Ready:     handler.Ready(db),
		Metrics:   m,
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
		Logger:    logger,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	cancel()
	workers.Wait()
	dispatcher.Wait()
	if err := publisher.Close(); err != nil {
		logger.Warn("closing publisher", zap.Error(err))
	}
}
