package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// ProjectRepository зависимости ProjectService.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error)
	ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Project, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	CountLockedMilestones(ctx context.Context, projectID uuid.UUID) (int, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// ProjectService управляет проектами клиентов.
type ProjectService struct {
	repo            ProjectRepository
	defaultCurrency string
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(repo ProjectRepository, defaultCurrency string) *ProjectService {
	return &ProjectService{repo: repo, defaultCurrency: defaultCurrency}
}

// ProjectInput данные проекта при создании и редактировании.
type ProjectInput struct {
	Title       string
	Description string
	Category    string
	Budget      float64
	Currency    string
	DeadlineAt  *time.Time
	Milestones  models.MilestonePlan
	Publish     bool
}

func (s *ProjectService) validateInput(in *ProjectInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = s.defaultCurrency
	}

	if err := validation.ValidateProjectTitle(in.Title); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateProjectDescription(in.Description); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateCategory(in.Category); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateAmount("бюджет", in.Budget); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateCurrency(in.Currency); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateMilestonePlan(in.Milestones, in.Budget); err != nil {
		return validationError(err)
	}
	if in.DeadlineAt != nil && in.DeadlineAt.Before(time.Now()) {
		return apperror.Validation("дедлайн не может быть в прошлом")
	}
	if in.Milestones == nil {
		in.Milestones = models.MilestonePlan{}
	}
	return nil
}

// Create создаёт проект клиента в статусе draft или сразу open.
func (s *ProjectService) Create(ctx context.Context, clientID uuid.UUID, in ProjectInput) (*models.Project, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	status := models.ProjectStatusDraft
	if in.Publish {
		status = models.ProjectStatusOpen
	}

	project := &models.Project{
		ClientID:    clientID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Budget:      in.Budget,
		Currency:    in.Currency,
		Status:      status,
		DeadlineAt:  in.DeadlineAt,
		Milestones:  in.Milestones,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, translate(err, "не удалось создать проект")
	}

	logger.Log.WithFields(logrus.Fields{
		"project_id": project.ID,
		"client_id":  clientID,
		"status":     status,
	}).Info("project: создан")

	return project, nil
}

// Get возвращает проект. Черновик видит только владелец и администратор.
func (s *ProjectService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.Status == models.ProjectStatusDraft && project.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.NotFound("проект не найден")
	}
	return project, nil
}

// getOwned загружает проект и проверяет, что его владелец actor.
func (s *ProjectService) getOwned(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить проект")
	}
	if project.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("проект принадлежит другому клиенту")
	}
	return project, nil
}

// Update изменяет проект, пока он в статусе draft или open.
func (s *ProjectService) Update(ctx context.Context, actor Actor, id uuid.UUID, in ProjectInput) (*models.Project, error) {
	project, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusDraft && project.Status != models.ProjectStatusOpen {
		return nil, apperror.Conflict("проект уже в работе и не может быть изменён")
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	project.Title = in.Title
	project.Description = in.Description
	project.Category = in.Category
	project.Budget = in.Budget
	project.Currency = in.Currency
	project.DeadlineAt = in.DeadlineAt
	project.Milestones = in.Milestones
	if in.Publish {
		project.Status = models.ProjectStatusOpen
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, translate(err, "не удалось обновить проект")
	}
	return project, nil
}

// Publish открывает черновик для предложений.
func (s *ProjectService) Publish(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	project, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ProjectStatusDraft, models.ProjectStatusOpen); err != nil {
		return nil, translate(err, "не удалось опубликовать проект")
	}
	project.Status = models.ProjectStatusOpen
	return project, nil
}

// Delete удаляет проект в статусе draft или open.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	return translate(s.repo.Delete(ctx, id), "не удалось удалить проект")
}

// Cancel отменяет проект. Пока в escrow есть деньги по этапам, отмена запрещена.
func (s *ProjectService) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*models.Project, error) {
	project, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	locked, err := s.repo.CountLockedMilestones(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось проверить этапы проекта")
	}
	if locked > 0 {
		return nil, apperror.Conflict("по проекту есть оплаченные этапы: сначала отмените договор с возвратом средств")
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, translate(err, "не удалось отменить проект")
	}
	project.Status = models.ProjectStatusCancelled

	logger.Log.WithFields(logrus.Fields{"project_id": id, "actor_id": actor.ID}).Info("project: отменён")
	return project, nil
}

// List возвращает открытые проекты по фильтру.
func (s *ProjectService) List(ctx context.Context, filter models.ProjectFilter) (*Page[models.Project], error) {
	if filter.Category != "" {
		if err := validation.ValidateCategory(filter.Category); err != nil {
			return nil, validationError(err)
		}
	}
	// публичный каталог показывает только открытые проекты
	filter.Status = models.ProjectStatusOpen
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "не удалось получить проекты")
	}
	return newPage(items, total, filter.Limit, filter.Offset), nil
}

// ListMine возвращает проекты клиента либо проекты, где исполнитель работает по договору.
func (s *ProjectService) ListMine(ctx context.Context, actor Actor, limit, offset int) ([]models.Project, error) {
	limit, offset = normalizePage(limit, offset)

	var (
		items []models.Project
		err   error
	)
	if actor.Role == models.RoleFreelancer {
		items, err = s.repo.ListByFreelancer(ctx, actor.ID, limit, offset)
	} else {
		items, err = s.repo.ListByClient(ctx, actor.ID, limit, offset)
	}
	if err != nil {
		return nil, translate(err, "не удалось получить проекты")
	}
	return items, nil
}
