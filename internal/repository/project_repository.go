package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository/common"
)

// ErrProjectNotFound возвращается, если проект не найден.
var ErrProjectNotFound = errors.New("project not found")

const projectColumns = `id, client_id, title, description, category, budget, allocated_budget, currency,
	status, deadline_at, milestones, created_at, updated_at`

// ProjectRepository управляет таблицей projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create сохраняет новый проект.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (client_id, title, description, category, budget, currency, status, deadline_at, milestones)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, allocated_budget, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		project.ClientID,
		project.Title,
		project.Description,
		project.Category,
		project.Budget,
		project.Currency,
		project.Status,
		project.DeadlineAt,
		project.Milestones,
	).Scan(&project.ID, &project.AllocatedBudget, &project.CreatedAt, &project.UpdatedAt); err != nil {
		return fmt.Errorf("project repository: create %w", err)
	}

	return nil
}

// GetByID возвращает проект по идентификатору.
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return common.GetByID[models.Project](ctx, r.db, "projects", id, ErrProjectNotFound)
}

// Update обновляет редактируемые поля проекта, пока по нему нет договора.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects
		SET title = $1, description = $2, category = $3, budget = $4, currency = $5,
			status = $6, deadline_at = $7, milestones = $8, updated_at = NOW()
		WHERE id = $9 AND status IN ('draft', 'open')
		RETURNING updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		project.Title,
		project.Description,
		project.Category,
		project.Budget,
		project.Currency,
		project.Status,
		project.DeadlineAt,
		project.Milestones,
		project.ID,
	).Scan(&project.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStateConflict
		}
		return fmt.Errorf("project repository: update %w", err)
	}

	return nil
}

// Delete удаляет черновой или открытый проект.
func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND status IN ('draft', 'open')`, id)
	if err != nil {
		return fmt.Errorf("project repository: delete %w", err)
	}
	return checkAffected(res, ErrStateConflict)
}

// List возвращает открытые проекты по фильтру и общее количество.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	status := filter.Status
	if status == "" {
		status = models.ProjectStatusOpen
	}
	where = append(where, fmt.Sprintf("status = $%d", argNum))
	args = append(args, status)
	argNum++

	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", argNum))
		args = append(args, filter.Category)
		argNum++
	}
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Query+"%")
		argNum++
	}
	if filter.MinBudget != nil {
		where = append(where, fmt.Sprintf("budget >= $%d", argNum))
		args = append(args, *filter.MinBudget)
		argNum++
	}
	if filter.MaxBudget != nil {
		where = append(where, fmt.Sprintf("budget <= $%d", argNum))
		args = append(args, *filter.MaxBudget)
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("project repository: count %w", err)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + cond +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	projects := []models.Project{}
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("project repository: list %w", err)
	}

	return projects, total, nil
}

// ListByClient возвращает проекты клиента.
func (r *ProjectRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	projects := []models.Project{}
	if err := r.db.SelectContext(ctx, &projects, query, clientID, limit, offset); err != nil {
		return nil, fmt.Errorf("project repository: list by client %w", err)
	}
	return projects, nil
}

// ListByFreelancer возвращает проекты, по которым у исполнителя есть договор.
func (r *ProjectRepository) ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Project, error) {
	query := `
		SELECT p.id, p.client_id, p.title, p.description, p.category, p.budget, p.allocated_budget, p.currency,
			p.status, p.deadline_at, p.milestones, p.created_at, p.updated_at
		FROM projects p
		JOIN contracts c ON c.project_id = p.id
		WHERE c.freelancer_id = $1
		ORDER BY p.created_at DESC
		LIMIT $2 OFFSET $3
	`

	projects := []models.Project{}
	if err := r.db.SelectContext(ctx, &projects, query, freelancerID, limit, offset); err != nil {
		return nil, fmt.Errorf("project repository: list by freelancer %w", err)
	}
	return projects, nil
}

// UpdateStatus переводит проект из статуса from в статус to.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("project repository: update status %w", err)
	}
	return checkAffected(res, ErrStateConflict)
}

// CountLockedMilestones считает этапы проекта, по которым деньги уже в escrow
// или ждут выплаты.
func (r *ProjectRepository) CountLockedMilestones(ctx context.Context, projectID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM milestones m
		JOIN contracts c ON c.id = m.contract_id
		WHERE c.project_id = $1 AND m.status IN ('funded', 'submitted', 'approved')
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, projectID); err != nil {
		return 0, fmt.Errorf("project repository: count locked milestones %w", err)
	}
	return count, nil
}

// Cancel отменяет проект вместе с активными договорами и неоплаченными этапами.
// Этапы с деньгами в escrow должны быть возвращены до вызова.
func (r *ProjectRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE projects SET status = 'cancelled', updated_at = NOW()
			 WHERE id = $1 AND status IN ('draft', 'open', 'in_progress')`, id)
		if err != nil {
			return fmt.Errorf("project repository: cancel %w", err)
		}
		if err := checkAffected(res, ErrStateConflict); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE milestones SET status = 'cancelled', updated_at = NOW()
			WHERE status = 'pending' AND contract_id IN (SELECT id FROM contracts WHERE project_id = $1)`, id); err != nil {
			return fmt.Errorf("project repository: cancel milestones %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE contracts SET status = 'cancelled', updated_at = NOW() WHERE project_id = $1 AND status = 'active'`, id); err != nil {
			return fmt.Errorf("project repository: cancel contracts %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE project_proposals SET status = 'rejected', updated_at = NOW()
			WHERE project_id = $1 AND status IN ('pending', 'negotiating')`, id); err != nil {
			return fmt.Errorf("project repository: reject proposals %w", err)
		}

		return nil
	})
}
