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

// ErrTransactionNotFound транзакция не найдена или уже обработана.
var ErrTransactionNotFound = errors.New("transaction not found")

const transactionColumns = `id, user_id, project_id, contract_id, milestone_id, type, amount, currency,
	status, reference, metadata, created_at, completed_at`

// WalletRepository работает с кошельками и журналом транзакций.
// Все изменения балансов выполняются хранимыми функциями.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository создаёт репозиторий кошельков.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetClientWallet возвращает кошелёк клиента; если его ещё нет, нулевой.
func (r *WalletRepository) GetClientWallet(ctx context.Context, clientID uuid.UUID) (*models.ClientWallet, error) {
	var wallet models.ClientWallet
	err := r.db.GetContext(ctx, &wallet, `
		SELECT client_id, available_balance, locked_balance, total_deposited, total_spent, currency, updated_at
		FROM client_wallets WHERE client_id = $1`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ClientWallet{ClientID: clientID, Currency: "EUR"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet repository: get client wallet %w", err)
	}
	return &wallet, nil
}

// GetFreelancerWallet возвращает кошелёк исполнителя; если его ещё нет, нулевой.
func (r *WalletRepository) GetFreelancerWallet(ctx context.Context, freelancerID uuid.UUID) (*models.FreelancerWallet, error) {
	var wallet models.FreelancerWallet
	err := r.db.GetContext(ctx, &wallet, `
		SELECT freelancer_id, available_balance, total_earned, total_withdrawn, currency, updated_at
		FROM freelancer_wallets WHERE freelancer_id = $1`, freelancerID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.FreelancerWallet{FreelancerID: freelancerID, Currency: "EUR"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet repository: get freelancer wallet %w", err)
	}
	return &wallet, nil
}

func (r *WalletRepository) callNumeric(ctx context.Context, op, query string, args ...interface{}) (float64, error) {
	var result float64
	if err := r.db.GetContext(ctx, &result, query, args...); err != nil {
		if mapped := mapFunctionError(err); mapped != err {
			return 0, mapped
		}
		return 0, fmt.Errorf("wallet repository: %s %w", op, err)
	}
	return result, nil
}

// AddBalance зачисляет средства на кошелёк клиента и возвращает новый доступный баланс.
func (r *WalletRepository) AddBalance(ctx context.Context, clientID uuid.UUID, amount float64, reference string) (float64, error) {
	return r.callNumeric(ctx, "add balance",
		`SELECT add_wallet_balance($1, $2, $3)`, clientID, amount, reference)
}

// LockFunds блокирует сумму этапа в escrow и возвращает остаток доступного баланса.
func (r *WalletRepository) LockFunds(ctx context.Context, projectID, clientID, milestoneID uuid.UUID, amount float64) (float64, error) {
	return r.callNumeric(ctx, "lock funds",
		`SELECT lock_project_funds($1, $2, $3, $4)`, projectID, clientID, milestoneID, amount)
}

// ReleaseMilestone выплачивает этап исполнителю и возвращает сумму за вычетом комиссии.
func (r *WalletRepository) ReleaseMilestone(ctx context.Context, milestoneID uuid.UUID, feeRate float64) (float64, error) {
	return r.callNumeric(ctx, "release milestone",
		`SELECT release_milestone_payment($1, $2)`, milestoneID, feeRate)
}

// RefundMilestone возвращает клиенту средства оплаченного, но не сданного этапа.
func (r *WalletRepository) RefundMilestone(ctx context.Context, milestoneID uuid.UUID) (float64, error) {
	return r.callNumeric(ctx, "refund milestone",
		`SELECT refund_project_funds($1)`, milestoneID)
}

// Withdraw списывает средства исполнителя и создаёт ожидающую выплату.
func (r *WalletRepository) Withdraw(ctx context.Context, freelancerID uuid.UUID, amount float64, reference string) (uuid.UUID, error) {
	var txID uuid.UUID
	if err := r.db.GetContext(ctx, &txID,
		`SELECT withdraw_freelancer_balance($1, $2, $3)`, freelancerID, amount, reference,
	); err != nil {
		if mapped := mapFunctionError(err); mapped != err {
			return uuid.Nil, mapped
		}
		return uuid.Nil, fmt.Errorf("wallet repository: withdraw %w", err)
	}
	return txID, nil
}

// RestoreWithdrawal возвращает средства неудачной выплаты на кошелёк исполнителя.
func (r *WalletRepository) RestoreWithdrawal(ctx context.Context, txID uuid.UUID, reason string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT restore_freelancer_balance($1, $2)`, txID, reason); err != nil {
		if mapped := mapFunctionError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("wallet repository: restore withdrawal %w", err)
	}
	return nil
}

// CompletePayout отмечает выплату выполненной и сохраняет идентификатор перевода.
func (r *WalletRepository) CompletePayout(ctx context.Context, txID uuid.UUID, transferID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed', completed_at = NOW(),
			metadata = metadata || jsonb_build_object('transfer_id', $1::text)
		WHERE id = $2 AND type = 'payout' AND status = 'pending'`, transferID, txID)
	if err != nil {
		return fmt.Errorf("wallet repository: complete payout %w", err)
	}
	return checkAffected(res, ErrTransactionNotFound)
}

// CreatePendingDeposit записывает ожидающее пополнение до подтверждения платежа.
func (r *WalletRepository) CreatePendingDeposit(ctx context.Context, tx *models.Transaction) error {
	metadata := "{}"
	if len(tx.Metadata) > 0 {
		metadata = string(tx.Metadata)
	}

	query := `
		INSERT INTO transactions (user_id, type, amount, currency, status, reference, metadata)
		VALUES ($1, 'deposit', $2, $3, 'pending', $4, $5)
		RETURNING id, type, status, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		tx.UserID, tx.Amount, tx.Currency, tx.Reference, metadata,
	).Scan(&tx.ID, &tx.Type, &tx.Status, &tx.CreatedAt); err != nil {
		return fmt.Errorf("wallet repository: create pending deposit %w", err)
	}
	return nil
}

// recordStripeEvent записывает событие платёжной системы в транзакции tx.
// Возвращает false, если событие уже было записано.
func recordStripeEvent(ctx context.Context, tx *sqlx.Tx, eventID, eventType string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO stripe_events (id, type) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("record stripe event %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplyDeposit в одной транзакции записывает событие и зачисляет средства.
// Повторное событие с тем же идентификатором ничего не меняет и возвращает false.
func (r *WalletRepository) ApplyDeposit(ctx context.Context, eventID string, clientID uuid.UUID, amount float64, reference string) (bool, error) {
	applied := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		first, err := recordStripeEvent(ctx, tx, eventID, "payment_intent.succeeded")
		if err != nil || !first {
			return err
		}

		if _, err := tx.ExecContext(ctx, `SELECT add_wallet_balance($1, $2, $3)`, clientID, amount, reference); err != nil {
			if mapped := mapFunctionError(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("wallet repository: apply deposit %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ApplyDepositFailure в одной транзакции записывает событие и помечает ожидающее
// пополнение неуспешным. Если пополнения нет, событие не записывается.
func (r *WalletRepository) ApplyDepositFailure(ctx context.Context, eventID, reference, reason string) (bool, error) {
	applied := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		first, err := recordStripeEvent(ctx, tx, eventID, "payment_intent.payment_failed")
		if err != nil || !first {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = 'failed', completed_at = NOW(),
				metadata = metadata || jsonb_build_object('failure_reason', $1::text)
			WHERE reference = $2 AND type = 'deposit' AND status = 'pending'`, reason, reference)
		if err != nil {
			return fmt.Errorf("wallet repository: mark deposit failed %w", err)
		}
		if err := checkAffected(res, ErrTransactionNotFound); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListTransactions возвращает журнал транзакций по фильтру и общее количество.
func (r *WalletRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if filter.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *filter.UserID)
		argNum++
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("type = $%d", argNum))
		args = append(args, filter.Type)
		argNum++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("wallet repository: count transactions %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + cond +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	txs := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("wallet repository: list transactions %w", err)
	}
	return txs, total, nil
}
