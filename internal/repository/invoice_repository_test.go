package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

func testInvoice() *models.Invoice {
	issue := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return &models.Invoice{
		ContractID:   uuid.New(),
		MilestoneID:  uuid.New(),
		FreelancerID: uuid.New(),
		ClientID:     uuid.New(),
		IssueDate:    issue,
		DueDate:      issue.AddDate(0, 0, 30),
		Currency:     "EUR",
		Subtotal:     1000,
		VATRate:      21,
		VATAmount:    210,
		IRPFRate:     15,
		IRPFAmount:   150,
		Total:        1060,
		TaxRegime:    "domestic",
	}
}

func TestFormatInvoiceNumber(t *testing.T) {
	assert.Equal(t, "F2026-00001", FormatInvoiceNumber(2026, 1))
	assert.Equal(t, "F2026-12345", FormatInvoiceNumber(2026, 12345))
}

func TestInvoiceRepository_IssueForMilestone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)
	inv := testInvoice()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoice_counters`).WithArgs(inv.FreelancerID, 2026).
		WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO invoices`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at", "updated_at"}).
			AddRow(uuid.New().String(), "issued", now, now))
	mock.ExpectExec(`UPDATE milestones\s+SET status = 'approved'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IssueForMilestone(context.Background(), inv))
	assert.Equal(t, "F2026-00007", inv.Number)
	assert.Equal(t, models.InvoiceStatusIssued, inv.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// invoiceInsertArgs ожидает номер и исполнителя, остальные поля любые.
func invoiceInsertArgs(number string, freelancerID uuid.UUID) []driver.Value {
	args := []driver.Value{number, sqlmock.AnyArg(), sqlmock.AnyArg(), freelancerID}
	for i := 0; i < 14; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	return args
}

func TestInvoiceRepository_IssueForMilestone_NumberingPerFreelancer(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)
	now := time.Now()

	first, second := testInvoice(), testInvoice()
	for _, inv := range []*models.Invoice{first, second} {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO invoice_counters`).WithArgs(inv.FreelancerID, 2026).
			WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(1))
		mock.ExpectQuery(`INSERT INTO invoices`).WithArgs(invoiceInsertArgs("F2026-00001", inv.FreelancerID)...).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at", "updated_at"}).
				AddRow(uuid.New().String(), "issued", now, now))
		mock.ExpectExec(`UPDATE milestones\s+SET status = 'approved'`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, repo.IssueForMilestone(context.Background(), first))
	require.NoError(t, repo.IssueForMilestone(context.Background(), second))

	assert.NotEqual(t, first.FreelancerID, second.FreelancerID)
	assert.Equal(t, "F2026-00001", first.Number)
	assert.Equal(t, "F2026-00001", second.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_IssueForMilestone_WrongState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoice_counters`).
		WillReturnRows(sqlmock.NewRows([]string{"last_number"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO invoices`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at", "updated_at"}).
			AddRow(uuid.New().String(), "issued", now, now))
	mock.ExpectExec(`UPDATE milestones`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.IssueForMilestone(context.Background(), testInvoice())
	assert.ErrorIs(t, err, ErrInvalidMilestoneState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_Cancel_ReopensMilestone(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)
	invoiceID := uuid.New()
	milestoneID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices SET status = 'cancelled'`).WithArgs(invoiceID).
		WillReturnRows(sqlmock.NewRows([]string{"milestone_id"}).AddRow(milestoneID.String()))
	mock.ExpectExec(`SET status = 'submitted', invoice_id = NULL`).WithArgs(milestoneID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Cancel(context.Background(), invoiceID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_Cancel_AlreadyApproved(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices SET status = 'cancelled'`).
		WillReturnRows(sqlmock.NewRows([]string{"milestone_id"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Cancel(context.Background(), uuid.New()), ErrStateConflict)
}

func TestInvoiceRepository_MarkOverdue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewInvoiceRepository(db)

	mock.ExpectExec(`SET status = 'overdue'`).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
