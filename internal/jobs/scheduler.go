package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// InvitationExpirer закрывает просроченные приглашения.
type InvitationExpirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// InvoiceOverdueMarker отмечает просроченные счета.
type InvoiceOverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// SessionPurger удаляет истёкшие сессии.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Task обслуживающая задача: возвращает число затронутых строк.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

const taskTimeout = 2 * time.Minute

// Scheduler запускает обслуживающие задачи по cron расписанию.
type Scheduler struct {
	cron  *cron.Cron
	tasks map[string]Task
}

// cronLogger адаптирует logrus к интерфейсу cron.Logger.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// DefaultTasks собирает штатные задачи площадки.
func DefaultTasks(cfg config.JobsConfig, invitations InvitationExpirer, invoices InvoiceOverdueMarker, sessions SessionPurger) []Task {
	return []Task{
		{Name: "expire_invitations", Spec: cfg.ExpireInvitations, Run: invitations.ExpirePending},
		{Name: "mark_overdue_invoices", Spec: cfg.MarkOverdue, Run: invoices.MarkOverdue},
		{Name: "purge_sessions", Spec: cfg.PurgeSessions, Run: sessions.PurgeExpiredSessions},
	}
}

// NewScheduler регистрирует задачи. Задача с пустым расписанием отключена.
func NewScheduler(tasks []Task) (*Scheduler, error) {
	log := cronLogger{entry: logger.Component("jobs")}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(log),
			cron.SkipIfStillRunning(log),
		), cron.WithLogger(log)),
		tasks: make(map[string]Task, len(tasks)),
	}

	for _, task := range tasks {
		if task.Spec == "" {
			continue
		}
		task := task
		if _, err := s.cron.AddFunc(task.Spec, func() { s.run(task) }); err != nil {
			return nil, fmt.Errorf("jobs: некорректное расписание %s %q: %w", task.Name, task.Spec, err)
		}
		s.tasks[task.Name] = task
	}

	return s, nil
}

func (s *Scheduler) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	started := time.Now()
	affected, err := task.Run(ctx)
	entry := logger.Component("jobs").WithFields(logrus.Fields{
		"task":     task.Name,
		"affected": affected,
		"duration": time.Since(started).String(),
	})
	if err != nil {
		entry.WithError(err).Error("jobs: задача завершилась с ошибкой")
		return
	}
	entry.Info("jobs: задача выполнена")
}

// RunNow выполняет задачу немедленно, вне расписания.
func (s *Scheduler) RunNow(name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("jobs: задача %q не зарегистрирована", name)
	}
	s.run(task)
	return nil
}

// Tasks возвращает имена зарегистрированных задач.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи или отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
