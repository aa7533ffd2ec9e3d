package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository/common"
)

var (
	// ErrUserNotFound возвращается, когда запись пользователя не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound сессия с таким токеном отсутствует.
	ErrSessionNotFound = errors.New("session not found")
)

const userColumns = `id, email, username, password_hash, role, is_active, last_login_at,
	stripe_customer_id, stripe_account_id, payouts_enabled, created_at, updated_at`

const profileColumns = `user_id, display_name, bio, hourly_rate, skills, categories, location, website, photo_id,
	country_code, tax_id, company_name, billing_address, is_business, irpf_reduced, updated_at`

// UserRepository отвечает за работу с таблицами users, profiles и user_sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, is_active, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}

	return &user, nil
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}

	return &user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, profile *models.Profile) error {
	var skills, categories pq.StringArray
	if err := row.Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Bio,
		&profile.HourlyRate,
		&skills,
		&categories,
		&profile.Location,
		&profile.Website,
		&profile.PhotoID,
		&profile.CountryCode,
		&profile.TaxID,
		&profile.CompanyName,
		&profile.BillingAddress,
		&profile.IsBusiness,
		&profile.IRPFReduced,
		&profile.UpdatedAt,
	); err != nil {
		return err
	}
	profile.Skills = []string(skills)
	profile.Categories = []string(categories)
	return nil
}

// UpsertProfile создаёт или обновляет профиль пользователя.
func (r *UserRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, bio, hourly_rate, skills, categories, location, website, photo_id,
			country_code, tax_id, company_name, billing_address, is_business, irpf_reduced, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			hourly_rate = EXCLUDED.hourly_rate,
			skills = EXCLUDED.skills,
			categories = EXCLUDED.categories,
			location = EXCLUDED.location,
			website = EXCLUDED.website,
			photo_id = EXCLUDED.photo_id,
			country_code = EXCLUDED.country_code,
			tax_id = EXCLUDED.tax_id,
			company_name = EXCLUDED.company_name,
			billing_address = EXCLUDED.billing_address,
			is_business = EXCLUDED.is_business,
			irpf_reduced = EXCLUDED.irpf_reduced,
			updated_at = NOW()
		RETURNING ` + profileColumns

	skills := profile.Skills
	if skills == nil {
		skills = []string{}
	}
	categories := profile.Categories
	if categories == nil {
		categories = []string{}
	}

	row := r.db.QueryRowxContext(
		ctx,
		query,
		profile.UserID,
		profile.DisplayName,
		profile.Bio,
		profile.HourlyRate,
		pq.Array(skills),
		pq.Array(categories),
		profile.Location,
		profile.Website,
		profile.PhotoID,
		profile.CountryCode,
		profile.TaxID,
		profile.CompanyName,
		profile.BillingAddress,
		profile.IsBusiness,
		profile.IRPFReduced,
	)

	if err := scanProfile(row, profile); err != nil {
		return fmt.Errorf("user repository: upsert profile %w", err)
	}

	return nil
}

// GetProfile возвращает профиль пользователя.
func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	var profile models.Profile
	if err := scanProfile(r.db.QueryRowxContext(ctx, query, userID), &profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get profile %w", err)
	}

	return &profile, nil
}

// CreateSession сохраняет новую сессию пользователя.
func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx,
		query,
		session.UserID,
		session.RefreshToken,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
	).Scan(&session.ID, &session.CreatedAt); err != nil {
		return fmt.Errorf("user repository: create session %w", err)
	}

	return nil
}

// DeleteSession удаляет сессию по refresh токену.
// Отсутствие сессии означает, что токен уже использован или отозван.
func (r *UserRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE refresh_token = $1`, refreshToken)
	if err != nil {
		return fmt.Errorf("user repository: delete session %w", err)
	}

	return checkAffected(res, ErrSessionNotFound)
}

// UpdateLastLoginAt обновляет время последнего входа пользователя.
func (r *UserRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("user repository: update last login at %w", err)
	}

	return nil
}

// ListSessions возвращает список всех активных сессий пользователя.
func (r *UserRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	query := `
		SELECT id, user_id, refresh_token, user_agent, ip_address, expires_at, created_at
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`

	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("user repository: list sessions %w", err)
	}

	return sessions, nil
}

// DeleteSessionByID удаляет сессию по идентификатору.
func (r *UserRepository) DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("user repository: delete session by id %w", err)
	}

	return checkAffected(result, ErrSessionNotFound)
}

// DeleteAllSessionsExcept удаляет все сессии пользователя кроме указанной.
func (r *UserRepository) DeleteAllSessionsExcept(ctx context.Context, userID uuid.UUID, exceptRefreshToken string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1 AND refresh_token != $2`, userID, exceptRefreshToken)
	if err != nil {
		return fmt.Errorf("user repository: delete all sessions except %w", err)
	}

	return nil
}

// PurgeExpiredSessions удаляет истёкшие сессии всех пользователей.
func (r *UserRepository) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("user repository: purge sessions %w", err)
	}
	return res.RowsAffected()
}

// GetUserStats возвращает статистику пользователя для публичного профиля.
func (r *UserRepository) GetUserStats(ctx context.Context, userID uuid.UUID) (*models.PublicProfileStats, error) {
	stats := &models.PublicProfileStats{}

	contractsQuery := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'active') AS active
		FROM contracts
		WHERE client_id = $1 OR freelancer_id = $1
	`
	if err := r.db.QueryRowxContext(ctx, contractsQuery, userID).Scan(&stats.CompletedContracts, &stats.ActiveContracts); err != nil {
		return nil, fmt.Errorf("user repository: get contract stats %w", err)
	}

	ratingQuery := `SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE reviewed_id = $1`
	if err := r.db.QueryRowxContext(ctx, ratingQuery, userID).Scan(&stats.AverageRating, &stats.TotalReviews); err != nil {
		return nil, fmt.Errorf("user repository: get rating stats %w", err)
	}

	// Округляем средний рейтинг до 2 знаков после запятой
	stats.AverageRating = float64(int(stats.AverageRating*100)) / 100

	return stats, nil
}

// FreelancerSearchParams параметры поиска исполнителей.
type FreelancerSearchParams struct {
	Query    string
	Category string
	Country  string
	Limit    int
	Offset   int
}

// SearchFreelancers ищет исполнителей по категории услуг, стране и тексту.
func (r *UserRepository) SearchFreelancers(ctx context.Context, params FreelancerSearchParams) ([]models.FreelancerSearchResult, error) {
	query := `
		SELECT
			u.id, u.username, u.created_at,
			p.display_name, p.bio, p.hourly_rate, p.skills, p.categories, p.country_code, p.photo_id,
			COALESCE(AVG(rv.rating), 0) AS avg_rating,
			COUNT(rv.id) AS review_count
		FROM users u
		LEFT JOIN profiles p ON u.id = p.user_id
		LEFT JOIN reviews rv ON u.id = rv.reviewed_id
		WHERE u.role = 'freelancer' AND u.is_active = TRUE
	`
	args := []interface{}{}
	argNum := 1

	if params.Query != "" {
		query += fmt.Sprintf(` AND (p.display_name ILIKE $%d OR p.bio ILIKE $%d OR u.username ILIKE $%d)`, argNum, argNum, argNum)
		args = append(args, "%"+params.Query+"%")
		argNum++
	}
	if params.Category != "" {
		query += fmt.Sprintf(` AND $%d = ANY(p.categories)`, argNum)
		args = append(args, params.Category)
		argNum++
	}
	if params.Country != "" {
		query += fmt.Sprintf(` AND p.country_code = $%d`, argNum)
		args = append(args, strings.ToUpper(params.Country))
		argNum++
	}

	query += ` GROUP BY u.id, u.username, u.created_at, p.display_name, p.bio, p.hourly_rate, p.skills, p.categories, p.country_code, p.photo_id`
	query += ` ORDER BY avg_rating DESC, review_count DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user repository: search freelancers %w", err)
	}
	defer rows.Close()

	results := []models.FreelancerSearchResult{}
	for rows.Next() {
		var res models.FreelancerSearchResult
		var skills, categories pq.StringArray
		if err := rows.Scan(
			&res.ID, &res.Username, &res.CreatedAt,
			&res.DisplayName, &res.Bio, &res.HourlyRate, &skills, &categories, &res.CountryCode, &res.PhotoID,
			&res.AvgRating, &res.ReviewCount,
		); err != nil {
			return nil, fmt.Errorf("user repository: scan freelancer %w", err)
		}
		res.Skills = []string(skills)
		res.Categories = []string(categories)
		results = append(results, res)
	}
	return results, rows.Err()
}

// SetStripeCustomerID сохраняет идентификатор покупателя Stripe.
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`, customerID, userID)
	if err != nil {
		return fmt.Errorf("user repository: set stripe customer %w", err)
	}
	return checkAffected(res, ErrUserNotFound)
}

// SetStripeAccountID сохраняет подключённый аккаунт для выплат.
func (r *UserRepository) SetStripeAccountID(ctx context.Context, userID uuid.UUID, accountID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET stripe_account_id = $1, updated_at = NOW() WHERE id = $2`, accountID, userID)
	if err != nil {
		return fmt.Errorf("user repository: set stripe account %w", err)
	}
	return checkAffected(res, ErrUserNotFound)
}

// ApplyPayoutsUpdate в одной транзакции записывает событие account.updated и обновляет
// флаг выплат. Повторное событие ничего не меняет и возвращает false.
func (r *UserRepository) ApplyPayoutsUpdate(ctx context.Context, eventID, accountID string, enabled bool) (bool, error) {
	applied := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		first, err := recordStripeEvent(ctx, tx, eventID, "account.updated")
		if err != nil || !first {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET payouts_enabled = $1, updated_at = NOW() WHERE stripe_account_id = $2`,
			enabled, accountID,
		)
		if err != nil {
			return fmt.Errorf("user repository: set payouts enabled %w", err)
		}
		if err := checkAffected(res, ErrUserNotFound); err != nil {
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

// ListUsers возвращает пользователей для админки и их общее количество.
func (r *UserRepository) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if filter.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", argNum))
		args = append(args, filter.Role)
		argNum++
	}
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR username ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Query+"%")
		argNum++
	}
	if filter.IsActive != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", argNum))
		args = append(args, *filter.IsActive)
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("user repository: count users %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + cond +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("user repository: list users %w", err)
	}
	return users, total, nil
}

// SetActive блокирует или разблокирует пользователя.
func (r *UserRepository) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, userID)
	if err != nil {
		return fmt.Errorf("user repository: set active %w", err)
	}
	if err := checkAffected(res, ErrUserNotFound); err != nil {
		return err
	}
	if !active {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("user repository: drop sessions %w", err)
		}
	}
	return nil
}
