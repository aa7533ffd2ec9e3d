package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

type mockConversationRepo struct {
	mock.Mock
}

func (m *mockConversationRepo) GetOrCreate(ctx context.Context, clientID, freelancerID uuid.UUID, projectID *uuid.UUID) (*models.Conversation, error) {
	args := m.Called(ctx, clientID, freelancerID, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *mockConversationRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *mockConversationRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockConversationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// fakeUsers отдаёт пользователей из карты.
type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func TestConversationService_Start_OrdersParticipants(t *testing.T) {
	repo := new(mockConversationRepo)
	worker := &models.User{ID: uuid.New(), Role: models.RoleFreelancer, IsActive: true}
	svc := NewConversationService(repo, fakeUsers{worker.ID: worker}, nil)

	client := Actor{ID: uuid.New(), Role: models.RoleClient}
	conv := &models.Conversation{ID: uuid.New(), ClientID: client.ID, FreelancerID: worker.ID}
	repo.On("GetOrCreate", mock.Anything, client.ID, worker.ID, (*uuid.UUID)(nil)).Return(conv, nil)

	got, err := svc.Start(context.Background(), client, worker.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestConversationService_Start_Rules(t *testing.T) {
	repo := new(mockConversationRepo)
	otherClient := &models.User{ID: uuid.New(), Role: models.RoleClient, IsActive: true}
	blocked := &models.User{ID: uuid.New(), Role: models.RoleFreelancer, IsActive: false}
	svc := NewConversationService(repo, fakeUsers{otherClient.ID: otherClient, blocked.ID: blocked}, nil)
	client := Actor{ID: uuid.New(), Role: models.RoleClient}

	_, err := svc.Start(context.Background(), client, client.ID, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Start(context.Background(), client, otherClient.ID, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Start(context.Background(), client, blocked.ID, nil)
	assert.True(t, apperror.IsNotFound(err))

	repo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConversationService_Send_PushesToCounterpart(t *testing.T) {
	repo := new(mockConversationRepo)
	notifier := &recordingNotifier{}
	svc := NewConversationService(repo, fakeUsers{}, notifier)

	conv := &models.Conversation{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New()}
	repo.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	repo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.Content == "Привет!" && m.SenderID == conv.ClientID
	})).Return(nil)

	msg, err := svc.Send(context.Background(), conv.ClientID, conv.ID, "  Привет!  ", nil)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.True(t, notifier.sentTo(conv.FreelancerID, eventMessageNew))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	for _, e := range notifier.events {
		assert.False(t, e.Persist)
	}
}

func TestConversationService_Send_Outsider(t *testing.T) {
	repo := new(mockConversationRepo)
	svc := NewConversationService(repo, fakeUsers{}, nil)

	conv := &models.Conversation{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New()}
	repo.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)

	_, err := svc.Send(context.Background(), uuid.New(), conv.ID, "hi", nil)
	assert.True(t, apperror.IsForbidden(err))

	_, err = svc.Send(context.Background(), conv.ClientID, conv.ID, "   ", nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestConversationService_MarkRead(t *testing.T) {
	repo := new(mockConversationRepo)
	notifier := &recordingNotifier{}
	svc := NewConversationService(repo, fakeUsers{}, notifier)

	conv := &models.Conversation{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New()}
	repo.On("GetByID", mock.Anything, conv.ID).Return(conv, nil)
	repo.On("MarkRead", mock.Anything, conv.ID, conv.FreelancerID).Return(int64(3), nil)

	n, err := svc.MarkRead(context.Background(), conv.FreelancerID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, notifier.sentTo(conv.ClientID, "messages.read"))
}
