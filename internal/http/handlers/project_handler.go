package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ProjectHandler обслуживает маршруты проектов.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler создаёт хэндлер.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type projectRequest struct {
	Title       string               `json:"title" binding:"required"`
	Description string               `json:"description" binding:"required"`
	Category    string               `json:"category" binding:"required"`
	Budget      float64              `json:"budget"`
	Currency    string               `json:"currency"`
	DeadlineAt  *time.Time           `json:"deadline_at"`
	Milestones  models.MilestonePlan `json:"milestones"`
	Publish     bool                 `json:"publish"`
}

func (r projectRequest) toInput() service.ProjectInput {
	return service.ProjectInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Budget:      r.Budget,
		Currency:    r.Currency,
		DeadlineAt:  r.DeadlineAt,
		Milestones:  r.Milestones,
		Publish:     r.Publish,
	}
}

// CreateProject обрабатывает POST /projects.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req projectRequest
	if !common.BindJSON(c, &req) {
		return
	}

	project, err := h.projects.Create(c.Request.Context(), userID, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// ListProjects обрабатывает GET /projects: открытые проекты с фильтрами.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	page, err := h.projects.List(c.Request.Context(), models.ProjectFilter{
		Status:    models.ProjectStatusOpen,
		Category:  c.Query("category"),
		Query:     c.Query("q"),
		MinBudget: common.ParseFloatQuery(c, "min_budget"),
		MaxBudget: common.ParseFloatQuery(c, "max_budget"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ListMyProjects обрабатывает GET /projects/my.
func (h *ProjectHandler) ListMyProjects(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	projects, err := h.projects.ListMine(c.Request.Context(), actor, limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, projects)
}

// GetProject обрабатывает GET /projects/:id.
// Без авторизации доступны только опубликованные проекты.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var actor service.Actor
	if userID, err := common.CurrentUserID(c); err == nil {
		role, _ := common.CurrentUserRole(c)
		actor = service.Actor{ID: userID, Role: role}
	}

	project, err := h.projects.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// UpdateProject обрабатывает PUT /projects/:id.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req projectRequest
	if !common.BindJSON(c, &req) {
		return
	}

	project, err := h.projects.Update(c.Request.Context(), actor, id, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// PublishProject обрабатывает POST /projects/:id/publish.
func (h *ProjectHandler) PublishProject(c *gin.Context) {
	h.transition(c, h.projects.Publish)
}

// CancelProject обрабатывает POST /projects/:id/cancel.
func (h *ProjectHandler) CancelProject(c *gin.Context) {
	h.transition(c, h.projects.Cancel)
}

func (h *ProjectHandler) transition(c *gin.Context, fn func(ctx context.Context, actor service.Actor, id uuid.UUID) (*models.Project, error)) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	project, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject обрабатывает DELETE /projects/:id.
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), actor, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
