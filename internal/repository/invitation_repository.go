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

// ErrInvitationNotFound приглашение не найдено.
var ErrInvitationNotFound = errors.New("invitation not found")

const invitationSelect = `
	SELECT i.id, i.project_id, i.client_id, i.freelancer_id, i.message, i.status, i.proposal_id,
		i.expires_at, i.created_at, i.updated_at, p.title AS project_title
	FROM project_invitations i
	JOIN projects p ON p.id = i.project_id
`

// InvitationRepository управляет приглашениями исполнителей.
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository создаёт репозиторий приглашений.
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create сохраняет приглашение. Повтор активного приглашения даёт ErrDuplicate.
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO project_invitations (project_id, client_id, freelancer_id, message, status, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING id, status, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		inv.ProjectID, inv.ClientID, inv.FreelancerID, inv.Message, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("invitation repository: create %w", err)
	}
	return nil
}

// GetByID возвращает приглашение с названием проекта.
func (r *InvitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, invitationSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation repository: get by id %w", err)
	}
	return &inv, nil
}

// ListByFreelancer возвращает приглашения, полученные исполнителем.
func (r *InvitationRepository) ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, status string) ([]models.Invitation, error) {
	invitations := []models.Invitation{}
	query := invitationSelect + ` WHERE i.freelancer_id = $1 AND ($2 = '' OR i.status = $2) ORDER BY i.created_at DESC`
	if err := r.db.SelectContext(ctx, &invitations, query, freelancerID, status); err != nil {
		return nil, fmt.Errorf("invitation repository: list by freelancer %w", err)
	}
	return invitations, nil
}

// ListByProject возвращает приглашения, отправленные по проекту.
func (r *InvitationRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Invitation, error) {
	invitations := []models.Invitation{}
	if err := r.db.SelectContext(ctx, &invitations, invitationSelect+` WHERE i.project_id = $1 ORDER BY i.created_at DESC`, projectID); err != nil {
		return nil, fmt.Errorf("invitation repository: list by project %w", err)
	}
	return invitations, nil
}

// Reject отклоняет ожидающее приглашение.
func (r *InvitationRepository) Reject(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE project_invitations SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("invitation repository: reject %w", err)
	}
	return checkAffected(res, ErrStateConflict)
}

// SubmitOffer создаёт предложение по приглашению и связывает их в одной транзакции.
func (r *InvitationRepository) SubmitOffer(ctx context.Context, inv *models.Invitation, proposal *models.Proposal) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO project_proposals (project_id, freelancer_id, invitation_id, cover_letter,
				proposed_amount, proposed_days, proposed_milestones, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
			RETURNING id, status, negotiation_history, created_at, updated_at`,
			proposal.ProjectID, proposal.FreelancerID, inv.ID, proposal.CoverLetter,
			proposal.ProposedAmount, proposal.ProposedDays, proposal.ProposedMilestones,
		).Scan(&proposal.ID, &proposal.Status, &proposal.NegotiationHistory, &proposal.CreatedAt, &proposal.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("invitation repository: create proposal %w", err)
		}
		invID := inv.ID
		proposal.InvitationID = &invID

		res, err := tx.ExecContext(ctx, `
			UPDATE project_invitations
			SET status = 'offer_submitted', proposal_id = $1, updated_at = NOW()
			WHERE id = $2 AND status = 'pending' AND expires_at > NOW()`, proposal.ID, inv.ID)
		if err != nil {
			return fmt.Errorf("invitation repository: attach proposal %w", err)
		}
		if err := checkAffected(res, ErrStateConflict); err != nil {
			return err
		}

		inv.Status = models.InvitationStatusOfferSubmitted
		inv.ProposalID = &proposal.ID
		return nil
	})
}

// ExpirePending переводит просроченные приглашения в expired.
func (r *InvitationRepository) ExpirePending(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE project_invitations SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("invitation repository: expire pending %w", err)
	}
	return res.RowsAffected()
}
