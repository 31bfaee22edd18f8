package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/flightbooking/api"
	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/bootstrap"
	"github.com/Domenick1991/flightbooking/internal/inventory"
	"github.com/Domenick1991/flightbooking/internal/logger"
	"github.com/Domenick1991/flightbooking/internal/postgres"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logger.New("booking-api", cfg.Log, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	notifications, err := bootstrap.OpenNotifications(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open notifications transport")
	}
	defer notifications.Close()

	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool),
		inventory.NewClient(cfg.Inventory.BaseURL, cfg.Inventory.Timeout()),
		cfg.Booking.ReservationWindow(),
		log,
		booking.WithNotifier(notifications.Notifier(), cfg.Notifications.Recipient, cfg.Notifications.Subject),
	)
	handler := api.NewBookingHandler(bookingService)

	router := bootstrap.NewRouter(cfg, log, bootstrap.RouterOptions{
		SwaggerSpec: "bookings.swagger.json",
		Checks: map[string]bootstrap.HealthCheck{
			"postgres":      pool.Ping,
			"notifications": notifications.Check,
		},
		Register: func(v1 *gin.RouterGroup) {
			bookings := v1.Group("/bookings")
			if cfg.Auth.JWTSecret != "" {
				bookings.Use(api.JWTAuth(cfg.Auth.JWTSecret))
			} else {
				log.Warn("auth.jwt_secret is empty, booking routes are unauthenticated")
			}
			handler.Register(bookings)
		},
	})

	if err := bootstrap.Run(ctx, cfg.HTTP.Address, router, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
