// Package main запускает HTTP-сервер сервиса заказов.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/paymesh/internal/config"
	"github.com/mmeshcher/paymesh/internal/handler"
	"github.com/mmeshcher/paymesh/internal/logger"
	"github.com/mmeshcher/paymesh/internal/peer"
	"github.com/mmeshcher/paymesh/internal/repository"
	"github.com/mmeshcher/paymesh/internal/server"
	"github.com/mmeshcher/paymesh/internal/service"
	"github.com/mmeshcher/paymesh/internal/telemetry"
)

const serviceName = "order-service"

func main() {
	bootstrap := zap.Must(zap.NewProduction())

	cfg, err := config.Parse(config.ServiceOrder)
	if err != nil {
		bootstrap.Fatal("configuration error", zap.Error(err))
	}

	log, err := logger.New(logger.Options{Service: serviceName, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		bootstrap.Fatal("logger initialization error", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatal("database initialization error", zap.Error(err))
	}
	defer store.Close()

	tel, err := telemetry.Setup(ctx, telemetry.Options{ServiceName: serviceName, CollectorEndpoint: cfg.CollectorEndpoint})
	if err != nil {
		log.Fatal("telemetry initialization error", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	users := peer.NewUserClient(peer.NewClient(cfg.UserServiceAddress, cfg.RemoteTimeout, tel.Transport(peer.DefaultTransport())))

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	svc := service.NewOrderService(store, users, tel, service.NewRandomDecider(cfg.OrderFaultRate, seed))
	h := handler.NewOrderHandler(svc, log)

	if err := server.Run(ctx, cfg.RunAddress, h.SetupRouter(tel), log); err != nil {
		log.Error("application terminated with error", zap.Error(err))
	}
}
