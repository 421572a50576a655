package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/homemaster-backend/internal/config"
	"github.com/ignatzorin/homemaster-backend/internal/db"
	httpHandlers "github.com/ignatzorin/homemaster-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/homemaster-backend/internal/http/router"
	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/paypal"
	"github.com/ignatzorin/homemaster-backend/internal/repository"
	"github.com/ignatzorin/homemaster-backend/internal/scheduler"
	"github.com/ignatzorin/homemaster-backend/internal/service"
	"github.com/ignatzorin/homemaster-backend/internal/storage"
	"github.com/ignatzorin/homemaster-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	photoStorage, err := storage.NewPhotoStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	gateway := paypal.NewClient(cfg.PaypalBaseURL(), cfg.PaypalClientID, cfg.PaypalSecret, cfg.GatewayTimeout)

	// Репозитории.
	jobRepo := repository.NewJobRepository(dbConn)
	providerRepo := repository.NewProviderRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)

	// Сервисы.
	jobService := service.NewJobService(jobRepo, providerRepo, cfg.Currency, cfg.OfferTTL)
	settlementService := service.NewSettlementService(escrowRepo, gateway, cfg.Currency, cfg.EscrowHoldDays, cfg.GatewayTimeout)

	// Вебсокеты: уведомления клиенту и мастеру о смене статуса заявки.
	hub := ws.NewHub(ctx)
	go hub.Run()
	jobService.SetHub(hub)

	// Планировщик ежедневных выплат.
	sweeper := scheduler.NewPayoutSweeper(settlementService, cfg.PayoutSweepAt)
	sweeper.Start(ctx)

	// HTTP хэндлеры.
	router := httpRouter.New(cfg, tokenManager, httpRouter.Handlers{
		Jobs:       httpHandlers.NewJobHandler(jobService),
		Providers:  httpHandlers.NewProviderHandler(providerRepo, jobService),
		Settlement: httpHandlers.NewSettlementHandler(settlementService, jobService, cfg.PaypalClientID, cfg.Currency),
		Admin:      httpHandlers.NewAdminHandler(settlementService, tokenManager, sweeper, cfg.AdminPasswordHash),
		Media:      httpHandlers.NewMediaHandler(jobRepo, photoStorage),
		Health:     httpHandlers.NewHealthHandler(dbConn),
		WS:         httpHandlers.NewWSHandler(hub, cfg.AllowedOrigins),
	})

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
