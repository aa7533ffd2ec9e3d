package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository/common"
)

var (
	// ErrContractNotFound договор не найден.
	ErrContractNotFound = errors.New("contract not found")
	// ErrMilestoneNotFound этап не найден.
	ErrMilestoneNotFound = errors.New("milestone not found")
)

const milestoneColumns = `id, contract_id, position, title, description, amount, due_at, status,
	deliverable_note, deliverable_media_id, revision_note, invoice_id,
	funded_at, submitted_at, approved_at, paid_at, created_at, updated_at`

// ContractRepository управляет договорами и их этапами.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository создаёт репозиторий договоров.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// GetByID возвращает договор без этапов.
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return common.GetByID[models.Contract](ctx, r.db, "contracts", id, ErrContractNotFound)
}

// GetWithMilestones возвращает договор вместе с этапами по порядку.
func (r *ContractRepository) GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	contract, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	milestones, err := r.ListMilestones(ctx, id)
	if err != nil {
		return nil, err
	}
	contract.Milestones = milestones

	return contract, nil
}

// ListByUser возвращает договоры, где пользователь клиент или исполнитель.
func (r *ContractRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Contract, error) {
	query := `
		SELECT id, project_id, proposal_id, client_id, freelancer_id, total_amount, paid_amount, currency,
			status, started_at, completed_at, created_at, updated_at
		FROM contracts
		WHERE (client_id = $1 OR freelancer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	contracts := []models.Contract{}
	if err := r.db.SelectContext(ctx, &contracts, query, userID, status, limit, offset); err != nil {
		return nil, fmt.Errorf("contract repository: list by user %w", err)
	}
	return contracts, nil
}

// GetMilestone возвращает этап по идентификатору.
func (r *ContractRepository) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var milestone models.Milestone
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`
	if err := r.db.GetContext(ctx, &milestone, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("contract repository: get milestone %w", err)
	}
	return &milestone, nil
}

// ListMilestones возвращает этапы договора по порядку.
func (r *ContractRepository) ListMilestones(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE contract_id = $1 ORDER BY position`

	milestones := []models.Milestone{}
	if err := r.db.SelectContext(ctx, &milestones, query, contractID); err != nil {
		return nil, fmt.Errorf("contract repository: list milestones %w", err)
	}
	return milestones, nil
}

// SubmitMilestone сдаёт результат по оплаченному этапу.
func (r *ContractRepository) SubmitMilestone(ctx context.Context, id uuid.UUID, note *string, mediaID *uuid.UUID) (*models.Milestone, error) {
	query := `
		UPDATE milestones
		SET status = 'submitted', deliverable_note = $1, deliverable_media_id = $2,
			revision_note = NULL, submitted_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = 'funded'
		RETURNING ` + milestoneColumns

	var milestone models.Milestone
	if err := r.db.QueryRowxContext(ctx, query, note, mediaID, id).StructScan(&milestone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidMilestoneState
		}
		return nil, fmt.Errorf("contract repository: submit milestone %w", err)
	}
	return &milestone, nil
}

// RequestChanges возвращает сданный этап исполнителю на доработку.
func (r *ContractRepository) RequestChanges(ctx context.Context, id uuid.UUID, note string) (*models.Milestone, error) {
	query := `
		UPDATE milestones
		SET status = 'funded', revision_note = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'submitted'
		RETURNING ` + milestoneColumns

	var milestone models.Milestone
	if err := r.db.QueryRowxContext(ctx, query, note, id).StructScan(&milestone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidMilestoneState
		}
		return nil, fmt.Errorf("contract repository: request changes %w", err)
	}
	return &milestone, nil
}

// CancelPendingMilestones отменяет все неоплаченные этапы договора.
func (r *ContractRepository) CancelPendingMilestones(ctx context.Context, contractID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE milestones SET status = 'cancelled', updated_at = NOW() WHERE contract_id = $1 AND status = 'pending'`,
		contractID,
	)
	if err != nil {
		return fmt.Errorf("contract repository: cancel pending milestones %w", err)
	}
	return nil
}

// Cancel отменяет договор и его проект. Все этапы к этому моменту
// должны быть оплачены или отменены.
func (r *ContractRepository) Cancel(ctx context.Context, contractID uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var open int
		if err := tx.GetContext(ctx, &open,
			`SELECT COUNT(*) FROM milestones WHERE contract_id = $1 AND status NOT IN ('paid', 'cancelled')`,
			contractID,
		); err != nil {
			return fmt.Errorf("contract repository: count open milestones %w", err)
		}
		if open > 0 {
			return ErrInvalidMilestoneState
		}

		var projectID uuid.UUID
		if err := tx.QueryRowxContext(ctx,
			`UPDATE contracts SET status = 'cancelled', updated_at = NOW()
			 WHERE id = $1 AND status = 'active' RETURNING project_id`,
			contractID,
		).Scan(&projectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStateConflict
			}
			return fmt.Errorf("contract repository: cancel %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET status = 'cancelled', updated_at = NOW() WHERE id = $1 AND status = 'in_progress'`,
			projectID,
		); err != nil {
			return fmt.Errorf("contract repository: cancel project %w", err)
		}
		return nil
	})
}
