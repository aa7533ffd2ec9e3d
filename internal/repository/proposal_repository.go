package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository/common"
)

// ErrProposalNotFound предложение не найдено.
var ErrProposalNotFound = errors.New("proposal not found")

const proposalColumns = `id, project_id, freelancer_id, invitation_id, cover_letter, proposed_amount, proposed_days,
	proposed_milestones, status, negotiation_history, final_amount, final_days, final_milestones,
	created_at, updated_at`

// ProposalRepository управляет предложениями и заключением договоров.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository создаёт репозиторий предложений.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create сохраняет новое предложение исполнителя.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	query := `
		INSERT INTO project_proposals (project_id, freelancer_id, invitation_id, cover_letter,
			proposed_amount, proposed_days, proposed_milestones, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id, status, negotiation_history, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		proposal.ProjectID,
		proposal.FreelancerID,
		proposal.InvitationID,
		proposal.CoverLetter,
		proposal.ProposedAmount,
		proposal.ProposedDays,
		proposal.ProposedMilestones,
	).Scan(&proposal.ID, &proposal.Status, &proposal.NegotiationHistory, &proposal.CreatedAt, &proposal.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("proposal repository: create %w", err)
	}

	return nil
}

// GetByID возвращает предложение по идентификатору.
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, `SELECT `+proposalColumns+` FROM project_proposals WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get by id %w", err)
	}
	return &proposal, nil
}

// ListByProject возвращает предложения по проекту.
func (r *ProposalRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error) {
	proposals := []models.Proposal{}
	query := `SELECT ` + proposalColumns + ` FROM project_proposals WHERE project_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &proposals, query, projectID); err != nil {
		return nil, fmt.Errorf("proposal repository: list by project %w", err)
	}
	return proposals, nil
}

// ListByFreelancer возвращает предложения исполнителя.
func (r *ProposalRepository) ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	proposals := []models.Proposal{}
	query := `SELECT ` + proposalColumns + ` FROM project_proposals WHERE freelancer_id = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &proposals, query, freelancerID, limit, offset); err != nil {
		return nil, fmt.Errorf("proposal repository: list by freelancer %w", err)
	}
	return proposals, nil
}

// AppendCounterOffer сохраняет новую историю переговоров, если с момента чтения
// предложение не менялось.
func (r *ProposalRepository) AppendCounterOffer(ctx context.Context, proposal *models.Proposal, readAt time.Time) error {
	query := `
		UPDATE project_proposals
		SET negotiation_history = $1, status = 'negotiating', updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'negotiating') AND updated_at = $3
		RETURNING status, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query, proposal.NegotiationHistory, proposal.ID, readAt).
		Scan(&proposal.Status, &proposal.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStateConflict
		}
		return fmt.Errorf("proposal repository: append counter offer %w", err)
	}
	return nil
}

// UpdateStatus закрывает открытое предложение (отклонение или отзыв).
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE project_proposals SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'negotiating')`, status, id)
	if err != nil {
		return fmt.Errorf("proposal repository: update status %w", err)
	}
	return checkAffected(res, ErrStateConflict)
}

// AcceptParams итоговые условия сделки.
type AcceptParams struct {
	ProposalID   uuid.UUID
	ProjectID    uuid.UUID
	ClientID     uuid.UUID
	FreelancerID uuid.UUID
	InvitationID *uuid.UUID
	Amount       float64
	Days         int
	Currency     string
	Milestones   models.MilestonePlan
}

// Accept фиксирует итоговые условия и в той же транзакции создаёт договор с этапами,
// переводит проект в работу, отклоняет остальные предложения и закрывает приглашение.
func (r *ProposalRepository) Accept(ctx context.Context, params AcceptParams) (*models.Contract, error) {
	contract := &models.Contract{
		ProjectID:    params.ProjectID,
		ProposalID:   params.ProposalID,
		ClientID:     params.ClientID,
		FreelancerID: params.FreelancerID,
		TotalAmount:  params.Amount,
		Currency:     params.Currency,
	}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE project_proposals
			SET status = 'accepted', final_amount = $1, final_days = $2, final_milestones = $3, updated_at = NOW()
			WHERE id = $4 AND status IN ('pending', 'negotiating')`,
			params.Amount, params.Days, params.Milestones, params.ProposalID)
		if err != nil {
			return fmt.Errorf("proposal repository: accept %w", err)
		}
		if err := checkAffected(res, ErrStateConflict); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE projects SET status = 'in_progress', updated_at = NOW() WHERE id = $1 AND status = 'open'`,
			params.ProjectID)
		if err != nil {
			return fmt.Errorf("proposal repository: start project %w", err)
		}
		if err := checkAffected(res, ErrStateConflict); err != nil {
			return err
		}

		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO contracts (project_id, proposal_id, client_id, freelancer_id, total_amount, currency)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, status, started_at, created_at, updated_at`,
			contract.ProjectID, contract.ProposalID, contract.ClientID, contract.FreelancerID,
			contract.TotalAmount, contract.Currency,
		).Scan(&contract.ID, &contract.Status, &contract.StartedAt, &contract.CreatedAt, &contract.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("proposal repository: create contract %w", err)
		}

		inserter := common.NewBatchInserter(tx,
			`INSERT INTO milestones (contract_id, position, title, description, amount, due_at)`, 6, 50)
		for i, m := range params.Milestones {
			var description *string
			if m.Description != "" {
				d := m.Description
				description = &d
			}
			var dueAt *time.Time
			if m.DueInDays > 0 {
				due := contract.StartedAt.AddDate(0, 0, m.DueInDays)
				dueAt = &due
			}
			if err := inserter.Add(ctx, contract.ID, i+1, m.Title, description, m.Amount, dueAt); err != nil {
				return err
			}
		}
		if err := inserter.Flush(ctx); err != nil {
			return fmt.Errorf("proposal repository: create milestones %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE project_proposals SET status = 'rejected', updated_at = NOW()
			WHERE project_id = $1 AND id <> $2 AND status IN ('pending', 'negotiating')`,
			params.ProjectID, params.ProposalID); err != nil {
			return fmt.Errorf("proposal repository: reject others %w", err)
		}

		if params.InvitationID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE project_invitations SET status = 'accepted', updated_at = NOW() WHERE id = $1`,
				*params.InvitationID); err != nil {
				return fmt.Errorf("proposal repository: accept invitation %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return contract, nil
}
