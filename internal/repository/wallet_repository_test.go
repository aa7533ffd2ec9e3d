package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestWalletRepository_ApplyDeposit_Once(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	clientID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_1", "payment_intent.succeeded").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT add_wallet_balance`).WithArgs(clientID, 150.0, "dep_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyDeposit(context.Background(), "evt_1", clientID, 150, "dep_1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ApplyDeposit_Replay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_1", "payment_intent.succeeded").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.ApplyDeposit(context.Background(), "evt_1", uuid.New(), 150, "dep_1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ApplyDeposit_RollsBackOnFunctionError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT add_wallet_balance`).
		WillReturnError(&pq.Error{Code: "P0001", Message: "invalid_amount"})
	mock.ExpectRollback()

	_, err := repo.ApplyDeposit(context.Background(), "evt_2", uuid.New(), 0, "dep_2")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ApplyDepositFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_5", "payment_intent.payment_failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions`).WithArgs("card_declined", "dep_5").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyDepositFailure(context.Background(), "evt_5", "dep_5", "card_declined")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ApplyDepositFailure_Replay(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := repo.ApplyDepositFailure(context.Background(), "evt_5", "dep_5", "card_declined")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Ошибка обновления откатывает и запись события: повторная доставка применит его снова.
func TestWalletRepository_ApplyDepositFailure_RollsBackEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ApplyDepositFailure(context.Background(), "evt_6", "dep_6", "card_declined")
	require.Error(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_6", "payment_intent.payment_failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyDepositFailure(context.Background(), "evt_6", "dep_6", "card_declined")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ApplyDepositFailure_UnknownReference(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyDepositFailure(context.Background(), "evt_7", "dep_missing", "card_declined")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_LockFunds_MapsErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectQuery(`SELECT lock_project_funds`).
		WillReturnError(&pq.Error{Code: "P0001", Message: "insufficient_funds"})

	_, err := repo.LockFunds(context.Background(), uuid.New(), uuid.New(), uuid.New(), 500)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	mock.ExpectQuery(`SELECT lock_project_funds`).
		WillReturnRows(sqlmock.NewRows([]string{"lock_project_funds"}).AddRow(250.0))

	available, err := repo.LockFunds(context.Background(), uuid.New(), uuid.New(), uuid.New(), 500)
	require.NoError(t, err)
	assert.Equal(t, 250.0, available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ReleaseMilestone_AlreadyPaid(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	milestoneID := uuid.New()

	mock.ExpectQuery(`SELECT release_milestone_payment`).WithArgs(milestoneID, 0.1).
		WillReturnError(&pq.Error{Code: "P0001", Message: "already_paid"})

	_, err := repo.ReleaseMilestone(context.Background(), milestoneID, 0.1)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestWalletRepository_UnknownErrorIsWrapped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)

	mock.ExpectQuery(`SELECT refund_project_funds`).WillReturnError(errors.New("connection reset"))

	_, err := repo.RefundMilestone(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet repository: refund milestone")
}

func TestWalletRepository_GetClientWallet_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWalletRepository(db)
	clientID := uuid.New()

	mock.ExpectQuery(`FROM client_wallets`).WithArgs(clientID).
		WillReturnRows(sqlmock.NewRows([]string{"client_id"}))

	wallet, err := repo.GetClientWallet(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, wallet.ClientID)
	assert.Zero(t, wallet.AvailableBalance)
}

func TestMapFunctionError(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, plain, mapFunctionError(plain))

	unknown := &pq.Error{Code: "P0001", Message: "something_else"}
	assert.Equal(t, error(unknown), mapFunctionError(unknown))

	assert.ErrorIs(t, mapFunctionError(&pq.Error{Code: "P0001", Message: "invoice_not_approved"}), ErrInvoiceNotApproved)
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
}
