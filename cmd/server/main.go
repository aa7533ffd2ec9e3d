package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/db"
	"github.com/ignatzorin/admarket-backend/internal/events"
	httpHandlers "github.com/ignatzorin/admarket-backend/internal/http/handlers"
	"github.com/ignatzorin/admarket-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/admarket-backend/internal/http/router"
	"github.com/ignatzorin/admarket-backend/internal/idempotency"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/payments"
	"github.com/ignatzorin/admarket-backend/internal/payments/stripegw"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/service"
	"github.com/ignatzorin/admarket-backend/internal/storage"
	"github.com/ignatzorin/admarket-backend/internal/tax"
	"github.com/ignatzorin/admarket-backend/internal/ws"
)

const (
	webhookDedupTTL   = 72 * time.Hour
	cacheCleanupEvery = 10 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Env)
	appLog := logger.Component("main")

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		appLog.WithError(err).Fatal("ошибка подключения к базе")
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		appLog.WithError(err).Fatal("ошибка миграций")
	}

	// Redis необязателен: без него лимитер в памяти, а дедупликация только по БД.
	var rdb *redis.Client
	var deduper idempotency.Deduper
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLog.WithError(err).Warn("redis недоступен при старте")
		}
		deduper = idempotency.NewRedisDeduper(rdb, webhookDedupTTL)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			appLog.WithError(err).Fatal("ошибка подключения к брокеру")
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	rates, err := tax.LoadRates(cfg.Market.TaxRatesPath)
	if err != nil {
		appLog.WithError(err).Fatal("не удалось загрузить налоговые ставки")
	}
	calculator := tax.NewCalculator(rates)

	files, err := storage.NewFileStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		appLog.WithError(err).Fatal("не удалось подготовить файловое хранилище")
	}

	var gateway payments.Gateway
	if cfg.Stripe.Enabled() {
		gateway = stripegw.New(cfg.Stripe)
	} else {
		appLog.Warn("STRIPE_SECRET_KEY не задан, платежи отключены")
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn)
	invitationRepo := repository.NewInvitationRepository(dbConn)
	proposalRepo := repository.NewProposalRepository(dbConn)
	contractRepo := repository.NewContractRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	invoiceRepo := repository.NewInvoiceRepository(dbConn)
	conversationRepo := repository.NewConversationRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	portfolioRepo := repository.NewPortfolioRepository(dbConn)
	mediaRepo := repository.NewMediaRepository(dbConn)
	adminRepo := repository.NewAdminRepository(dbConn)

	// Вебсокеты.
	notificationService := service.NewNotificationService(notificationRepo)
	hub := ws.NewHub()
	hub.SetNotificationSaver(notificationService)
	go hub.Run(ctx)

	// Сервисы.
	cache := service.NewCacheService(ctx, cacheCleanupEvery)
	authService := service.NewAuthService(userRepo, tokenManager)
	portfolioService := service.NewPortfolioService(portfolioRepo)
	profileService := service.NewProfileService(userRepo, portfolioService)
	projectService := service.NewProjectService(projectRepo, cfg.Market.DefaultCurrency)
	invitationService := service.NewInvitationService(invitationRepo, projectRepo, userRepo, hub, publisher, cfg.Market.InvitationTTL)
	proposalService := service.NewProposalService(proposalRepo, projectRepo, hub, publisher)
	contractService := service.NewContractService(contractRepo, walletRepo, invoiceRepo, userRepo, calculator, hub, publisher, service.ContractConfig{
		FeeRate:        cfg.Market.PlatformFeeRate,
		InvoiceDueDays: cfg.Market.InvoiceDueDays,
	})
	invoiceService := service.NewInvoiceService(invoiceRepo, calculator, hub)
	walletService := service.NewWalletService(walletRepo, userRepo, gateway, cfg.Market.DefaultCurrency, cache)
	webhookService := service.NewStripeWebhookService(gateway, walletRepo, userRepo, deduper, hub, cache)
	conversationService := service.NewConversationService(conversationRepo, userRepo, hub)
	reviewService := service.NewReviewService(reviewRepo, contractRepo, hub)
	mediaService := service.NewMediaService(mediaRepo, files)
	adminService := service.NewAdminService(adminRepo, userRepo, cache, cfg.Market.AdminStatsTTL)

	// HTTP хэндлеры и роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Auth:         httpHandlers.NewAuthHandler(authService),
		Profile:      httpHandlers.NewProfileHandler(profileService),
		Project:      httpHandlers.NewProjectHandler(projectService),
		Invitation:   httpHandlers.NewInvitationHandler(invitationService),
		Proposal:     httpHandlers.NewProposalHandler(proposalService),
		Contract:     httpHandlers.NewContractHandler(contractService),
		Wallet:       httpHandlers.NewWalletHandler(walletService, webhookService),
		Invoice:      httpHandlers.NewInvoiceHandler(invoiceService),
		Conversation: httpHandlers.NewConversationHandler(conversationService),
		Review:       httpHandlers.NewReviewHandler(reviewService),
		Notification: httpHandlers.NewNotificationHandler(notificationService),
		Portfolio:    httpHandlers.NewPortfolioHandler(portfolioService),
		Media:        httpHandlers.NewMediaHandler(mediaService),
		Admin:        httpHandlers.NewAdminHandler(adminService, walletService, invoiceService),
		WS:           httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:       httpHandlers.NewHealthHandler(dbConn, rdb, hub),
	}, tokenManager, middleware.NewRateLimitStore(rdb))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("ошибка остановки http сервера")
		}
	}()

	appLog.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.WithError(err).Fatal("сервер завершился с ошибкой")
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
