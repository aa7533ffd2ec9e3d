package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/db"
	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/goroutine"
	"github.com/ignatzorin/admarket-backend/internal/jobs"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/mailer"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

const (
	mailQueue       = "admarket.mail"
	shutdownTimeout = 30 * time.Second
)

// Воркер: обслуживающие задачи по расписанию и письма по событиям из брокера.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("worker: ошибка загрузки конфигурации: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Env)
	workerLog := logger.Component("worker")

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		workerLog.WithError(err).Fatal("ошибка подключения к базе")
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepository(dbConn)
	invitationRepo := repository.NewInvitationRepository(dbConn)
	invoiceRepo := repository.NewInvoiceRepository(dbConn)

	scheduler, err := jobs.NewScheduler(jobs.DefaultTasks(cfg.Jobs, invitationRepo, invoiceRepo, userRepo))
	if err != nil {
		workerLog.WithError(err).Fatal("ошибка регистрации задач")
	}
	scheduler.Start()
	workerLog.Info("планировщик запущен")

	if cfg.AMQPURL != "" {
		consumer, err := events.NewConsumer(cfg.AMQPURL, mailQueue, []string{
			events.InvitationCreated,
			events.ProposalAccepted,
			events.MilestoneSubmitted,
			events.InvoiceIssued,
			events.MilestonePaid,
		})
		if err != nil {
			workerLog.WithError(err).Fatal("ошибка подключения к брокеру")
		}
		defer consumer.Close()

		notifier := mailer.NewEventNotifier(userRepo, mailer.New(cfg.SMTP))
		goroutine.SafeGo("mail-consumer", func() {
			if err := consumer.Run(ctx, notifier.Handle); err != nil {
				workerLog.WithError(err).Error("потребитель событий остановлен")
				stop()
			}
		})
		workerLog.WithField("queue", mailQueue).Info("потребитель событий запущен")
	} else {
		workerLog.Warn("AMQP_URL не задан, письма по событиям не отправляются")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	workerLog.Info("воркер остановлен")
}
