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

// ErrInvoiceNotFound счёт не найден.
var ErrInvoiceNotFound = errors.New("invoice not found")

const invoiceColumns = `id, number, contract_id, milestone_id, freelancer_id, client_id, issue_date, due_date,
	currency, subtotal, vat_rate, vat_amount, irpf_rate, irpf_amount, total, tax_regime, tax_note,
	supplier, customer, status, approved_at, paid_at, created_at, updated_at`

// InvoiceRepository управляет счетами и их нумерацией.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository создаёт репозиторий счетов.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FormatInvoiceNumber собирает номер счёта вида F2026-00001.
func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("F%d-%05d", year, seq)
}

// IssueForMilestone выставляет счёт по сданному этапу и переводит этап в approved.
// Номер берётся из сквозного счётчика исполнителя за год выставления.
func (r *InvoiceRepository) IssueForMilestone(ctx context.Context, invoice *models.Invoice) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		year := invoice.IssueDate.Year()

		var seq int
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO invoice_counters (freelancer_id, year, last_number)
			VALUES ($1, $2, 1)
			ON CONFLICT (freelancer_id, year) DO UPDATE SET last_number = invoice_counters.last_number + 1
			RETURNING last_number`, invoice.FreelancerID, year,
		).Scan(&seq); err != nil {
			return fmt.Errorf("invoice repository: next number %w", err)
		}
		invoice.Number = FormatInvoiceNumber(year, seq)

		query := `
			INSERT INTO invoices (number, contract_id, milestone_id, freelancer_id, client_id, issue_date, due_date,
				currency, subtotal, vat_rate, vat_amount, irpf_rate, irpf_amount, total, tax_regime, tax_note,
				supplier, customer, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 'issued')
			RETURNING id, status, created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			invoice.Number,
			invoice.ContractID,
			invoice.MilestoneID,
			invoice.FreelancerID,
			invoice.ClientID,
			invoice.IssueDate,
			invoice.DueDate,
			invoice.Currency,
			invoice.Subtotal,
			invoice.VATRate,
			invoice.VATAmount,
			invoice.IRPFRate,
			invoice.IRPFAmount,
			invoice.Total,
			invoice.TaxRegime,
			invoice.TaxNote,
			invoice.Supplier,
			invoice.Customer,
		).Scan(&invoice.ID, &invoice.Status, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("invoice repository: insert %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE milestones
			SET status = 'approved', invoice_id = $1, approved_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND status = 'submitted'`, invoice.ID, invoice.MilestoneID)
		if err != nil {
			return fmt.Errorf("invoice repository: approve milestone %w", err)
		}
		return checkAffected(res, ErrInvalidMilestoneState)
	})
}

// GetByID возвращает счёт по идентификатору.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoice repository: get by id %w", err)
	}
	return &invoice, nil
}

// GetByMilestone возвращает действующий (не отменённый) счёт этапа.
func (r *InvoiceRepository) GetByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE milestone_id = $1 AND status <> 'cancelled'`
	if err := r.db.GetContext(ctx, &invoice, query, milestoneID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoice repository: get by milestone %w", err)
	}
	return &invoice, nil
}

// List возвращает счета по фильтру; UserID ограничивает выборку счетами,
// где пользователь исполнитель или получатель.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if filter.UserID != nil {
		where = append(where, fmt.Sprintf("(freelancer_id = $%d OR client_id = $%d)", argNum, argNum))
		args = append(args, *filter.UserID)
		argNum++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM invoices WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("invoice repository: count %w", err)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + cond +
		fmt.Sprintf(` ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	invoices := []models.Invoice{}
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("invoice repository: list %w", err)
	}
	return invoices, total, nil
}

// Approve подтверждает счёт клиентом.
func (r *InvoiceRepository) Approve(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	query := `
		UPDATE invoices SET status = 'approved', approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('issued', 'overdue')
		RETURNING ` + invoiceColumns

	var invoice models.Invoice
	if err := r.db.QueryRowxContext(ctx, query, id).StructScan(&invoice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("invoice repository: approve %w", err)
	}
	return &invoice, nil
}

// Cancel аннулирует неподтверждённый счёт и возвращает этап в статус submitted,
// чтобы клиент мог принять его повторно.
func (r *InvoiceRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var milestoneID uuid.UUID
		if err := tx.QueryRowxContext(ctx, `
			UPDATE invoices SET status = 'cancelled', updated_at = NOW()
			WHERE id = $1 AND status IN ('issued', 'overdue')
			RETURNING milestone_id`, id,
		).Scan(&milestoneID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStateConflict
			}
			return fmt.Errorf("invoice repository: cancel %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE milestones
			SET status = 'submitted', invoice_id = NULL, approved_at = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'approved'`, milestoneID); err != nil {
			return fmt.Errorf("invoice repository: reopen milestone %w", err)
		}
		return nil
	})
}

// MarkOverdue переводит просроченные выставленные счета в overdue.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET status = 'overdue', updated_at = NOW()
		WHERE status = 'issued' AND due_date < CURRENT_DATE`)
	if err != nil {
		return 0, fmt.Errorf("invoice repository: mark overdue %w", err)
	}
	return res.RowsAffected()
}
