package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

type memoryProjects struct {
	items  map[uuid.UUID]*models.Project
	locked map[uuid.UUID]int
	filter models.ProjectFilter
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{items: map[uuid.UUID]*models.Project{}, locked: map[uuid.UUID]int{}}
}

func (m *memoryProjects) Create(_ context.Context, p *models.Project) error {
	p.ID = uuid.New()
	m.items[p.ID] = p
	return nil
}

func (m *memoryProjects) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProjects) Update(_ context.Context, p *models.Project) error {
	m.items[p.ID] = p
	return nil
}

func (m *memoryProjects) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *memoryProjects) List(_ context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	m.filter = filter
	var out []models.Project
	for _, p := range m.items {
		if p.Status == filter.Status {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (m *memoryProjects) ListByClient(context.Context, uuid.UUID, int, int) ([]models.Project, error) {
	return nil, nil
}

func (m *memoryProjects) ListByFreelancer(context.Context, uuid.UUID, int, int) ([]models.Project, error) {
	return nil, nil
}

func (m *memoryProjects) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	p, ok := m.items[id]
	if !ok {
		return repository.ErrProjectNotFound
	}
	if p.Status != from {
		return repository.ErrStateConflict
	}
	p.Status = to
	return nil
}

func (m *memoryProjects) CountLockedMilestones(_ context.Context, id uuid.UUID) (int, error) {
	return m.locked[id], nil
}

func (m *memoryProjects) Cancel(_ context.Context, id uuid.UUID) error {
	m.items[id].Status = models.ProjectStatusCancelled
	return nil
}

func validProjectInput() ProjectInput {
	return ProjectInput{
		Title:       "Запуск рекламы в поиске",
		Description: "Нужна настройка кампаний в поиске и отчётность раз в неделю",
		Category:    models.CategorySEM,
		Budget:      2000,
		Milestones: models.MilestonePlan{
			{Title: "Настройка", Amount: 800},
			{Title: "Ведение", Amount: 1200},
		},
	}
}

func TestProjectService_CreateDraftWithDefaultCurrency(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	clientID := uuid.New()

	project, err := svc.Create(context.Background(), clientID, validProjectInput())

	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusDraft, project.Status)
	assert.Equal(t, "EUR", project.Currency)
	assert.Equal(t, clientID, project.ClientID)
}

func TestProjectService_CreateRejectsPlanNotMatchingBudget(t *testing.T) {
	svc := NewProjectService(newMemoryProjects(), "EUR")
	in := validProjectInput()
	in.Budget = 5000

	_, err := svc.Create(context.Background(), uuid.New(), in)

	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestProjectService_DraftHiddenFromOthers(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	owner := Actor{ID: uuid.New(), Role: models.RoleClient}

	project, err := svc.Create(context.Background(), owner.ID, validProjectInput())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), Actor{ID: uuid.New(), Role: models.RoleFreelancer}, project.ID)
	assert.True(t, apperror.IsNotFound(err))

	got, err := svc.Get(context.Background(), owner, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = svc.Get(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, project.ID)
	assert.NoError(t, err)
}

func TestProjectService_PublishTwiceConflicts(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	owner := Actor{ID: uuid.New(), Role: models.RoleClient}
	project, err := svc.Create(context.Background(), owner.ID, validProjectInput())
	require.NoError(t, err)

	published, err := svc.Publish(context.Background(), owner, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusOpen, published.Status)

	_, err = svc.Publish(context.Background(), owner, project.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestProjectService_UpdateForeignProjectForbidden(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	project, err := svc.Create(context.Background(), uuid.New(), validProjectInput())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), Actor{ID: uuid.New(), Role: models.RoleClient}, project.ID, validProjectInput())

	assert.True(t, apperror.IsForbidden(err))
}

func TestProjectService_UpdateInProgressConflicts(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	owner := Actor{ID: uuid.New(), Role: models.RoleClient}
	project, err := svc.Create(context.Background(), owner.ID, validProjectInput())
	require.NoError(t, err)
	repo.items[project.ID].Status = models.ProjectStatusInProgress

	_, err = svc.Update(context.Background(), owner, project.ID, validProjectInput())

	assert.True(t, apperror.IsConflict(err))
}

func TestProjectService_CancelBlockedByLockedFunds(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")
	owner := Actor{ID: uuid.New(), Role: models.RoleClient}
	project, err := svc.Create(context.Background(), owner.ID, validProjectInput())
	require.NoError(t, err)
	repo.locked[project.ID] = 1

	_, err = svc.Cancel(context.Background(), owner, project.ID)
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, models.ProjectStatusDraft, repo.items[project.ID].Status)

	repo.locked[project.ID] = 0
	cancelled, err := svc.Cancel(context.Background(), owner, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCancelled, cancelled.Status)
}

func TestProjectService_ListForcesOpenStatus(t *testing.T) {
	repo := newMemoryProjects()
	svc := NewProjectService(repo, "EUR")

	_, err := svc.List(context.Background(), models.ProjectFilter{Status: models.ProjectStatusDraft, Limit: 5000})

	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusOpen, repo.filter.Status)
	assert.LessOrEqual(t, repo.filter.Limit, maxPageSize)
}

func TestProjectService_ListRejectsUnknownCategory(t *testing.T) {
	svc := NewProjectService(newMemoryProjects(), "EUR")

	_, err := svc.List(context.Background(), models.ProjectFilter{Category: "billboards"})

	assert.True(t, apperror.IsValidation(err))
}
