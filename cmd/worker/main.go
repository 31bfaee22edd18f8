package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/bootstrap"
	"github.com/Domenick1991/flightbooking/internal/cache"
	"github.com/Domenick1991/flightbooking/internal/email"
	"github.com/Domenick1991/flightbooking/internal/inventory"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/Domenick1991/flightbooking/internal/notify"
	"github.com/Domenick1991/flightbooking/internal/postgres"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Background worker: cancels stale reservations and delivers booking emails.
func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logger.New("booking-worker", cfg.Log, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheDuration())
	defer redisCache.Close()

	notifications, err := bootstrap.OpenNotifications(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open notifications transport")
	}
	defer notifications.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	bookingService := booking.NewBookingService(
		bookingRepo,
		inventory.NewClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout()),
		cfg.Booking.ReservationWindow(),
		log,
	)
	sweeper := booking.NewSweeper(
		bookingRepo,
		bookingService,
		cfg.Booking.ReservationWindow(),
		log,
		booking.WithSweepLock(redisCache, cfg.Worker.SweepLockTTL()),
		booking.WithConcurrency(cfg.Worker.SweepConcurrency),
	)
	dispatcher := notify.NewDispatcher(email.NewSender(cfg.SMTP, log), redisCache, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.Worker.SweepInterval())
	})
	g.Go(func() error {
		return notifications.Consume(gctx, dispatcher.Handle)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("worker stopped")
	}
	log.Info("worker stopped")
}
