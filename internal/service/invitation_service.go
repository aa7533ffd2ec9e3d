package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// InvitationRepository зависимости InvitationService.
type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, status string) ([]models.Invitation, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Invitation, error)
	Reject(ctx context.Context, id uuid.UUID) error
	SubmitOffer(ctx context.Context, inv *models.Invitation, proposal *models.Proposal) error
}

// ProjectReader чтение проекта для проверок владельца и статуса.
type ProjectReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// UserReader чтение пользователя.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// InvitationService приглашения исполнителей в проекты.
type InvitationService struct {
	repo      InvitationRepository
	projects  ProjectReader
	users     UserReader
	notifier  Notifier
	publisher events.Publisher
	ttl       time.Duration
}

// NewInvitationService создаёт сервис приглашений.
func NewInvitationService(repo InvitationRepository, projects ProjectReader, users UserReader, notifier Notifier, publisher events.Publisher, ttl time.Duration) *InvitationService {
	return &InvitationService{
		repo:      repo,
		projects:  projects,
		users:     users,
		notifier:  notifierOrNoop(notifier),
		publisher: publisherOrNoop(publisher),
		ttl:       ttl,
	}
}

// InviteInput данные приглашения.
type InviteInput struct {
	ProjectID    uuid.UUID
	FreelancerID uuid.UUID
	Message      *string
}

// Invite приглашает исполнителя в открытый проект клиента.
func (s *InvitationService) Invite(ctx context.Context, clientID uuid.UUID, in InviteInput) (*models.Invitation, error) {
	if err := validation.ValidateOptionalLength("сообщение", in.Message, validation.MaxInvitationMessageLength); err != nil {
		return nil, validationError(err)
	}

	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.ClientID != clientID {
		return nil, apperror.Forbidden("приглашать можно только в свои проекты")
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("приглашать можно только в открытый проект")
	}

	freelancer, err := s.users.GetByID(ctx, in.FreelancerID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить исполнителя")
	}
	if freelancer.Role != models.RoleFreelancer || !freelancer.IsActive {
		return nil, apperror.Validation("пользователь не является активным исполнителем")
	}

	inv := &models.Invitation{
		ProjectID:    project.ID,
		ClientID:     clientID,
		FreelancerID: freelancer.ID,
		Message:      trimmedOrNil(in.Message),
		Status:       models.InvitationStatusPending,
		ExpiresAt:    time.Now().Add(s.ttl),
		ProjectTitle: project.Title,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, translate(err, "не удалось создать приглашение")
	}

	data := map[string]any{
		"invitation_id": inv.ID,
		"project_id":    project.ID,
		"project_title": project.Title,
		"expires_at":    inv.ExpiresAt,
	}
	notify(s.notifier, events.InvitationCreated, data, freelancer.ID)
	publishAsync(s.publisher, events.New(events.InvitationCreated, data, freelancer.ID))

	logger.Log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"project_id":    project.ID,
		"freelancer_id": freelancer.ID,
	}).Info("invitation: создано")

	return inv, nil
}

// ListReceived возвращает приглашения исполнителя.
func (s *InvitationService) ListReceived(ctx context.Context, freelancerID uuid.UUID, status string) ([]models.Invitation, error) {
	items, err := s.repo.ListByFreelancer(ctx, freelancerID, strings.TrimSpace(status))
	if err != nil {
		return nil, translate(err, "не удалось получить приглашения")
	}
	return items, nil
}

// ListForProject возвращает приглашения проекта его владельцу.
func (s *InvitationService) ListForProject(ctx context.Context, actor Actor, projectID uuid.UUID) ([]models.Invitation, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("проект принадлежит другому клиенту")
	}
	items, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, translate(err, "не удалось получить приглашения")
	}
	return items, nil
}

// getReceived загружает активное приглашение, адресованное исполнителю.
func (s *InvitationService) getReceived(ctx context.Context, freelancerID, id uuid.UUID) (*models.Invitation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить приглашение")
	}
	if inv.FreelancerID != freelancerID {
		return nil, apperror.Forbidden("приглашение адресовано другому исполнителю")
	}
	if !inv.IsActive(time.Now()) {
		return nil, apperror.Conflict("приглашение уже неактивно")
	}
	return inv, nil
}

// Reject отклоняет приглашение.
func (s *InvitationService) Reject(ctx context.Context, freelancerID, id uuid.UUID) error {
	inv, err := s.getReceived(ctx, freelancerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Reject(ctx, id); err != nil {
		return translate(err, "не удалось отклонить приглашение")
	}

	notify(s.notifier, "invitation.rejected", map[string]any{
		"invitation_id": inv.ID,
		"project_id":    inv.ProjectID,
	}, inv.ClientID)
	return nil
}

// SubmitOffer создаёт предложение по приглашению.
func (s *InvitationService) SubmitOffer(ctx context.Context, freelancerID, id uuid.UUID, in ProposalInput) (*models.Proposal, error) {
	inv, err := s.getReceived(ctx, freelancerID, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, inv.ProjectID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("проект больше не принимает предложения")
	}

	proposal := in.toProposal(project.ID, freelancerID)
	if err := s.repo.SubmitOffer(ctx, inv, proposal); err != nil {
		return nil, translate(err, "не удалось отправить предложение")
	}

	notify(s.notifier, "proposal.submitted", map[string]any{
		"proposal_id":   proposal.ID,
		"project_id":    project.ID,
		"invitation_id": inv.ID,
		"amount":        proposal.ProposedAmount,
	}, project.ClientID)

	return proposal, nil
}
