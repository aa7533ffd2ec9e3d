package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

// AdminRepository собирает агрегаты для back-office.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository создаёт репозиторий админки.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

type groupCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

func (r *AdminRepository) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows := []groupCount{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

// Stats считает показатели площадки.
func (r *AdminRepository) Stats(ctx context.Context) (*models.PlatformStats, error) {
	stats := &models.PlatformStats{GeneratedAt: time.Now().UTC()}

	var err error
	if stats.UsersByRole, err = r.countBy(ctx, `SELECT role AS key, COUNT(*) AS count FROM users GROUP BY role`); err != nil {
		return nil, fmt.Errorf("admin repository: users by role %w", err)
	}
	if stats.ProjectsByStatus, err = r.countBy(ctx, `SELECT status AS key, COUNT(*) AS count FROM projects GROUP BY status`); err != nil {
		return nil, fmt.Errorf("admin repository: projects by status %w", err)
	}
	if stats.InvoicesByStatus, err = r.countBy(ctx, `SELECT status AS key, COUNT(*) AS count FROM invoices GROUP BY status`); err != nil {
		return nil, fmt.Errorf("admin repository: invoices by status %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM contracts WHERE status = 'active'`).
		Scan(&stats.ActiveContracts); err != nil {
		return nil, fmt.Errorf("admin repository: active contracts %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, `
		SELECT COALESCE(SUM(locked_balance), 0), COALESCE(SUM(available_balance), 0) FROM client_wallets`).
		Scan(&stats.EscrowLocked, &stats.ClientAvailable); err != nil {
		return nil, fmt.Errorf("admin repository: client wallets %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, `SELECT COALESCE(SUM(available_balance), 0) FROM freelancer_wallets`).
		Scan(&stats.FreelancerBalances); err != nil {
		return nil, fmt.Errorf("admin repository: freelancer wallets %w", err)
	}

	// Выплата клиента пишется одной release-транзакцией на пользователя-клиента.
	if err := r.db.QueryRowxContext(ctx, `
		SELECT
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'release' AND t.user_id = c.client_id), 0),
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'fee'), 0)
		FROM transactions t
		JOIN contracts c ON c.id = t.contract_id
		WHERE t.status = 'completed' AND t.type IN ('release', 'fee')`).
		Scan(&stats.GrossReleased, &stats.PlatformFees); err != nil {
		return nil, fmt.Errorf("admin repository: released totals %w", err)
	}

	return stats, nil
}
