package mailer

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
)

func TestMain(m *testing.M) {
	logger.Init("panic", "test")
	os.Exit(m.Run())
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func TestRender(t *testing.T) {
	subject, body, ok := Render(events.New(events.InvoiceIssued, map[string]any{
		"number": "F2026-00001", "total": 1060.0, "currency": "EUR", "due_date": "2026-11-16",
	}))
	assert.True(t, ok)
	assert.Equal(t, "Выставлен счёт", subject)
	assert.Contains(t, body, "F2026-00001")
	assert.Contains(t, body, "1060 EUR")

	_, _, ok = Render(events.New("unknown.event", nil))
	assert.False(t, ok)
}

func TestEventNotifier_Handle(t *testing.T) {
	ctx := context.Background()
	users := new(mockUsers)
	sender := new(mockMailer)
	n := NewEventNotifier(users, sender)

	active := &models.User{ID: uuid.New(), Email: "client@example.com", IsActive: true}
	blocked := &models.User{ID: uuid.New(), Email: "blocked@example.com", IsActive: false}
	missing := uuid.New()

	users.On("GetByID", ctx, active.ID).Return(active, nil)
	users.On("GetByID", ctx, blocked.ID).Return(blocked, nil)
	users.On("GetByID", ctx, missing).Return(nil, errors.New("not found"))
	sender.On("Send", ctx, "client@example.com", "Этап сдан на проверку", mock.AnythingOfType("string")).Return(nil)

	err := n.Handle(ctx, events.New(events.MilestoneSubmitted, map[string]any{"milestone_title": "Аудит"}, active.ID, blocked.ID, missing))
	assert.NoError(t, err)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestEventNotifier_SendError(t *testing.T) {
	ctx := context.Background()
	users := new(mockUsers)
	sender := new(mockMailer)
	n := NewEventNotifier(users, sender)

	u := &models.User{ID: uuid.New(), Email: "f@example.com", IsActive: true}
	users.On("GetByID", ctx, u.ID).Return(u, nil)
	sender.On("Send", ctx, u.Email, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := n.Handle(ctx, events.New(events.MilestonePaid, map[string]any{"milestone_title": "Аудит"}, u.ID))
	assert.Error(t, err)

	assert.NoError(t, n.Handle(ctx, events.New("unknown.event", nil, u.ID)))
}

func TestNew_FallsBackToLog(t *testing.T) {
	_, ok := New(config.SMTPConfig{}).(LogMailer)
	assert.True(t, ok)

	_, ok = New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}).(*SMTPMailer)
	assert.True(t, ok)
}
