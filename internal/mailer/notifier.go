package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
)

// UserLookup нужен для поиска email получателей.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]emailTemplate{
	events.InvitationCreated: {
		subject: "Новое приглашение в проект",
		body: template.Must(template.New("invitation").Parse(
			`<p>Вас пригласили в проект «{{.project_title}}».</p>{{if .message}}<p>{{.message}}</p>{{end}}`)),
	},
	events.ProposalAccepted: {
		subject: "Предложение принято",
		body: template.Must(template.New("proposal").Parse(
			`<p>Предложение по проекту «{{.project_title}}» принято. Сумма договора: {{.amount}} {{.currency}}.</p>`)),
	},
	events.MilestoneSubmitted: {
		subject: "Этап сдан на проверку",
		body: template.Must(template.New("submitted").Parse(
			`<p>Исполнитель сдал этап «{{.milestone_title}}». Проверьте результат и подтвердите приёмку.</p>`)),
	},
	events.InvoiceIssued: {
		subject: "Выставлен счёт",
		body: template.Must(template.New("invoice").Parse(
			`<p>Счёт {{.number}} на сумму {{.total}} {{.currency}}. Срок оплаты: {{.due_date}}.</p>`)),
	},
	events.MilestonePaid: {
		subject: "Этап оплачен",
		body: template.Must(template.New("paid").Parse(
			`<p>Этап «{{.milestone_title}}» оплачен, на баланс зачислено {{.net_amount}} {{.currency}}.</p>`)),
	},
}

// Render возвращает тему и тело письма для события.
func Render(event events.Event) (string, string, bool) {
	tpl, ok := templates[event.Type]
	if !ok {
		return "", "", false
	}

	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, event.Data); err != nil {
		return "", "", false
	}
	return tpl.subject, buf.String(), true
}

// EventNotifier рассылает письма по доменным событиям.
type EventNotifier struct {
	users  UserLookup
	mailer Mailer
}

// NewEventNotifier создаёт обработчик событий для воркера.
func NewEventNotifier(users UserLookup, mailer Mailer) *EventNotifier {
	return &EventNotifier{users: users, mailer: mailer}
}

// Handle отправляет письмо каждому получателю события.
// Неизвестные события подтверждаются без отправки.
func (n *EventNotifier) Handle(ctx context.Context, event events.Event) error {
	subject, body, ok := Render(event)
	if !ok {
		logger.Log.WithField("event", event.Type).Debug("mailer: нет шаблона для события")
		return nil
	}

	var errs []error
	for _, recipientID := range event.Recipients {
		user, err := n.users.GetByID(ctx, recipientID)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": recipientID,
				"error":   err.Error(),
			}).Warn("mailer: получатель не найден")
			continue
		}
		if !user.IsActive {
			continue
		}
		if err := n.mailer.Send(ctx, user.Email, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", user.Email, err))
		}
	}
	return errors.Join(errs...)
}
