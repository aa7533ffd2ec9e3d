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
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// ProposalRepository зависимости ProposalService.
type ProposalRepository interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error)
	ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Proposal, error)
	AppendCounterOffer(ctx context.Context, proposal *models.Proposal, readAt time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Accept(ctx context.Context, params repository.AcceptParams) (*models.Contract, error)
}

// ProposalService предложения исполнителей и переговоры по условиям.
type ProposalService struct {
	repo      ProposalRepository
	projects  ProjectReader
	notifier  Notifier
	publisher events.Publisher
}

// NewProposalService создаёт сервис предложений.
func NewProposalService(repo ProposalRepository, projects ProjectReader, notifier Notifier, publisher events.Publisher) *ProposalService {
	return &ProposalService{
		repo:      repo,
		projects:  projects,
		notifier:  notifierOrNoop(notifier),
		publisher: publisherOrNoop(publisher),
	}
}

// ProposalInput условия исполнителя.
type ProposalInput struct {
	CoverLetter string
	Amount      float64
	Days        int
	Milestones  models.MilestonePlan
}

func (in *ProposalInput) validate() error {
	in.CoverLetter = strings.TrimSpace(in.CoverLetter)
	if err := validation.ValidateCoverLetter(in.CoverLetter); err != nil {
		return validationError(err)
	}
	return validateTerms(in.Amount, in.Days, in.Milestones)
}

func (in *ProposalInput) toProposal(projectID, freelancerID uuid.UUID) *models.Proposal {
	milestones := in.Milestones
	if milestones == nil {
		milestones = models.MilestonePlan{}
	}
	return &models.Proposal{
		ProjectID:          projectID,
		FreelancerID:       freelancerID,
		CoverLetter:        in.CoverLetter,
		ProposedAmount:     in.Amount,
		ProposedDays:       in.Days,
		ProposedMilestones: milestones,
		Status:             models.ProposalStatusPending,
		NegotiationHistory: models.NegotiationHistory{},
	}
}

func validateTerms(amount float64, days int, milestones models.MilestonePlan) error {
	if err := validation.ValidateAmount("сумма", amount); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateDeliveryDays(days); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateMilestonePlan(milestones, amount); err != nil {
		return validationError(err)
	}
	return nil
}

// CounterInput встречное предложение.
type CounterInput struct {
	Amount     float64
	Days       int
	Milestones models.MilestonePlan
	Message    string
}

// Submit отправляет предложение исполнителя в открытый проект.
func (s *ProposalService) Submit(ctx context.Context, freelancerID, projectID uuid.UUID, in ProposalInput) (*models.Proposal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("проект не принимает предложения")
	}
	if project.ClientID == freelancerID {
		return nil, apperror.Forbidden("нельзя откликнуться на собственный проект")
	}

	proposal := in.toProposal(projectID, freelancerID)
	if err := s.repo.Create(ctx, proposal); err != nil {
		return nil, translate(err, "не удалось создать предложение")
	}

	notify(s.notifier, "proposal.submitted", map[string]any{
		"proposal_id": proposal.ID,
		"project_id":  projectID,
		"amount":      proposal.ProposedAmount,
	}, project.ClientID)

	return proposal, nil
}

// load возвращает предложение, проект и роль actor в переговорах.
func (s *ProposalService) load(ctx context.Context, actor Actor, id uuid.UUID) (*models.Proposal, *models.Project, string, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, "", translate(err, "не удалось загрузить предложение")
	}
	project, err := s.projects.GetByID(ctx, proposal.ProjectID)
	if err != nil {
		return nil, nil, "", translate(err, "не удалось загрузить проект")
	}

	switch actor.ID {
	case project.ClientID:
		return proposal, project, models.RoleClient, nil
	case proposal.FreelancerID:
		return proposal, project, models.RoleFreelancer, nil
	}
	if actor.IsAdmin() {
		return proposal, project, models.RoleAdmin, nil
	}
	return nil, nil, "", apperror.Forbidden("вы не участвуете в этом предложении")
}

// Get возвращает предложение участнику переговоров.
func (s *ProposalService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Proposal, error) {
	proposal, _, _, err := s.load(ctx, actor, id)
	return proposal, err
}

// ListForProject возвращает предложения проекта владельцу.
func (s *ProposalService) ListForProject(ctx context.Context, actor Actor, projectID uuid.UUID) ([]models.Proposal, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("проект принадлежит другому клиенту")
	}
	items, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, translate(err, "не удалось получить предложения")
	}
	return items, nil
}

// ListMine возвращает предложения исполнителя.
func (s *ProposalService) ListMine(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.ListByFreelancer(ctx, freelancerID, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось получить предложения")
	}
	return items, nil
}

// Counter добавляет встречное предложение. Сторона не может перебить
// собственные последние условия.
func (s *ProposalService) Counter(ctx context.Context, actor Actor, id uuid.UUID, in CounterInput) (*models.Proposal, error) {
	proposal, project, role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleAdmin {
		return nil, apperror.Forbidden("администратор не участвует в переговорах")
	}
	if !proposal.IsOpen() {
		return nil, apperror.Conflict("переговоры по предложению завершены")
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("проект больше не принимает предложения")
	}

	current := proposal.CurrentTerms()
	if current.AuthorID == actor.ID {
		return nil, apperror.Conflict("дождитесь ответа другой стороны на ваши условия")
	}

	in.Message = strings.TrimSpace(in.Message)
	if err := validation.ValidateLength("сообщение", in.Message, 0, validation.MaxNegotiationMessageLen); err != nil {
		return nil, validationError(err)
	}
	if err := validateTerms(in.Amount, in.Days, in.Milestones); err != nil {
		return nil, err
	}

	readAt := proposal.UpdatedAt
	proposal.NegotiationHistory = append(proposal.NegotiationHistory, models.NegotiationEntry{
		AuthorID:   actor.ID,
		AuthorRole: role,
		Amount:     in.Amount,
		Days:       in.Days,
		Milestones: in.Milestones,
		Message:    in.Message,
		CreatedAt:  time.Now().UTC(),
	})

	if err := s.repo.AppendCounterOffer(ctx, proposal, readAt); err != nil {
		return nil, translate(err, "не удалось сохранить встречное предложение")
	}

	counterpart := proposal.FreelancerID
	if role == models.RoleFreelancer {
		counterpart = project.ClientID
	}
	notify(s.notifier, "proposal.countered", map[string]any{
		"proposal_id": proposal.ID,
		"project_id":  project.ID,
		"amount":      in.Amount,
		"days":        in.Days,
	}, counterpart)

	return proposal, nil
}

// Accept принимает действующие условия и создаёт договор.
// Принять может только сторона, которая не предлагала последние условия.
func (s *ProposalService) Accept(ctx context.Context, actor Actor, id uuid.UUID) (*models.Contract, error) {
	proposal, project, role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleAdmin {
		return nil, apperror.Forbidden("администратор не участвует в переговорах")
	}
	if !proposal.IsOpen() {
		return nil, apperror.Conflict("предложение уже закрыто")
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("проект уже в работе или закрыт")
	}

	terms := proposal.CurrentTerms()
	if terms.AuthorID == actor.ID {
		return nil, apperror.Conflict("нельзя принять собственные условия")
	}

	milestones := finalMilestones(terms, project.Title)
	if err := validation.ValidateMilestonePlan(milestones, terms.Amount); err != nil {
		return nil, apperror.Conflict("сумма этапов не совпадает с суммой договора: " + err.Error())
	}

	contract, err := s.repo.Accept(ctx, repository.AcceptParams{
		ProposalID:   proposal.ID,
		ProjectID:    project.ID,
		ClientID:     project.ClientID,
		FreelancerID: proposal.FreelancerID,
		InvitationID: proposal.InvitationID,
		Amount:       terms.Amount,
		Days:         terms.Days,
		Currency:     project.Currency,
		Milestones:   milestones,
	})
	if err != nil {
		return nil, translate(err, "не удалось принять предложение")
	}

	logger.Log.WithFields(logrus.Fields{
		"proposal_id": proposal.ID,
		"contract_id": contract.ID,
		"amount":      terms.Amount,
	}).Info("proposal: принято, договор создан")

	data := map[string]any{
		"proposal_id":   proposal.ID,
		"contract_id":   contract.ID,
		"project_id":    project.ID,
		"project_title": project.Title,
		"amount":        terms.Amount,
	}
	notify(s.notifier, events.ProposalAccepted, data, project.ClientID, proposal.FreelancerID)
	publishAsync(s.publisher, events.New(events.ProposalAccepted, data, project.ClientID, proposal.FreelancerID))

	return contract, nil
}

// finalMilestones: без плана этапов договор получает один этап на всю сумму.
func finalMilestones(terms models.NegotiationEntry, projectTitle string) models.MilestonePlan {
	if len(terms.Milestones) > 0 {
		return terms.Milestones
	}
	return models.MilestonePlan{{
		Title:     projectTitle,
		Amount:    terms.Amount,
		DueInDays: terms.Days,
	}}
}

// Reject отклоняет предложение (клиент).
func (s *ProposalService) Reject(ctx context.Context, actor Actor, id uuid.UUID) error {
	proposal, project, role, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if role != models.RoleClient && role != models.RoleAdmin {
		return apperror.Forbidden("отклонить предложение может только клиент")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ProposalStatusRejected); err != nil {
		return translate(err, "не удалось отклонить предложение")
	}

	notify(s.notifier, "proposal.rejected", map[string]any{
		"proposal_id": id,
		"project_id":  project.ID,
	}, proposal.FreelancerID)
	return nil
}

// Withdraw отзывает предложение (исполнитель).
func (s *ProposalService) Withdraw(ctx context.Context, actor Actor, id uuid.UUID) error {
	_, project, role, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if role != models.RoleFreelancer {
		return apperror.Forbidden("отозвать предложение может только исполнитель")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ProposalStatusWithdrawn); err != nil {
		return translate(err, "не удалось отозвать предложение")
	}

	notify(s.notifier, "proposal.withdrawn", map[string]any{
		"proposal_id": id,
		"project_id":  project.ID,
	}, project.ClientID)
	return nil
}
