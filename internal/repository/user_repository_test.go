package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

func TestUserRepository_DeleteSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`DELETE FROM user_sessions WHERE refresh_token`).WithArgs("token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.DeleteSession(context.Background(), "token-1"))

	mock.ExpectExec(`DELETE FROM user_sessions WHERE refresh_token`).WithArgs("reused").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeleteSession(context.Background(), "reused"), ErrSessionNotFound)
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "a@b.es", Username: "ana", Role: models.RoleClient})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepository_GetProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	userID := uuid.New()
	country := "ES"

	rows := sqlmock.NewRows([]string{
		"user_id", "display_name", "bio", "hourly_rate", "skills", "categories", "location", "website", "photo_id",
		"country_code", "tax_id", "company_name", "billing_address", "is_business", "irpf_reduced", "updated_at",
	}).AddRow(userID.String(), "Ana", nil, nil, "{google-ads,meta}", "{ppc}", nil, nil, nil,
		country, nil, nil, nil, false, true, time.Now())
	mock.ExpectQuery(`FROM profiles WHERE user_id`).WithArgs(userID).WillReturnRows(rows)

	profile, err := repo.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"google-ads", "meta"}, profile.Skills)
	assert.Equal(t, []string{"ppc"}, profile.Categories)
	require.NotNil(t, profile.CountryCode)
	assert.Equal(t, "ES", *profile.CountryCode)
	assert.True(t, profile.IRPFReduced)
}

func TestUserRepository_GetProfile_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM profiles`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_SetActive_DropsSessions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE users SET is_active`).WithArgs(false, userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM user_sessions WHERE user_id`).WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SetActive(context.Background(), userID, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ApplyPayoutsUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_9", "account.updated").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET payouts_enabled`).WithArgs(true, "acct_9").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ApplyPayoutsUpdate(context.Background(), "evt_9", "acct_9", true)
	require.Error(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_9", "account.updated").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET payouts_enabled`).WithArgs(true, "acct_9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.ApplyPayoutsUpdate(context.Background(), "evt_9", "acct_9", true)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WithArgs("evt_9", "account.updated").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err = repo.ApplyPayoutsUpdate(context.Background(), "evt_9", "acct_9", true)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ApplyPayoutsUpdate_UnknownAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO stripe_events`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET payouts_enabled`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyPayoutsUpdate(context.Background(), "evt_10", "acct_unknown", false)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
