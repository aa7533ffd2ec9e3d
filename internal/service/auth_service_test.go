package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

func TestMain(m *testing.M) {
	logger.Init("panic", "test")
	os.Exit(m.Run())
}

// fakeAuthRepository хранит пользователей и сессии в памяти.
type fakeAuthRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	profiles     map[uuid.UUID]*models.Profile
	sessions     map[string]*models.Session
}

func newFakeAuthRepository() *fakeAuthRepository {
	return &fakeAuthRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		profiles:     make(map[uuid.UUID]*models.Profile),
		sessions:     make(map[string]*models.Session),
	}
}

func (f *fakeAuthRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := f.usersByEmail[user.Email]; ok {
		return repository.ErrDuplicate
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	f.usersByEmail[user.Email] = user
	f.usersByID[user.ID] = user
	return nil
}

func (f *fakeAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := f.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAuthRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := f.usersByID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAuthRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if profile, ok := f.profiles[userID]; ok {
		return profile, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAuthRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	f.profiles[profile.UserID] = profile
	return nil
}

func (f *fakeAuthRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	f.sessions[session.RefreshToken] = session
	return nil
}

func (f *fakeAuthRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	if _, ok := f.sessions[refreshToken]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(f.sessions, refreshToken)
	return nil
}

func (f *fakeAuthRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

func (f *fakeAuthRepository) DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	for token, s := range f.sessions {
		if s.ID == sessionID && s.UserID == userID {
			delete(f.sessions, token)
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (f *fakeAuthRepository) DeleteAllSessionsExcept(ctx context.Context, userID uuid.UUID, exceptRefreshToken string) error {
	for token, s := range f.sessions {
		if s.UserID == userID && token != exceptRefreshToken {
			delete(f.sessions, token)
		}
	}
	return nil
}

func (f *fakeAuthRepository) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := f.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func newTestAuthService() (*AuthService, *fakeAuthRepository, *TokenManager) {
	repo := newFakeAuthRepository()
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	return NewAuthService(repo, tm), repo, tm
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, repo, tm := newTestAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		Email:    "Ana@Agency.es",
		Password: "Password123",
		Role:     models.RoleFreelancer,
	}, SessionMeta{IP: "127.0.0.1"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, res.User.ID)
	assert.Equal(t, "ana@agency.es", res.User.Email)
	require.NotNil(t, res.Profile)
	assert.NotEmpty(t, res.Profile.DisplayName)
	assert.Len(t, repo.sessions, 1)

	userID, role, err := tm.ParseAccess(res.TokenPair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
	assert.Equal(t, models.RoleFreelancer, role)

	loginRes, err := svc.Login(ctx, LoginInput{Email: "ana@agency.es", Password: "Password123"}, SessionMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, loginRes.TokenPair.AccessToken)
	assert.NotNil(t, repo.usersByID[res.User.ID].LastLoginAt)
	assert.Len(t, repo.sessions, 2)
}

func TestAuthService_RegisterRejectsAdminRole(t *testing.T) {
	svc, repo, _ := newTestAuthService()

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "root@agency.es",
		Password: "Password123",
		Role:     models.RoleAdmin,
	}, SessionMeta{})

	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, repo.usersByEmail)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()
	in := RegisterInput{Email: "dup@agency.es", Password: "Password123", Role: models.RoleClient}

	_, err := svc.Register(ctx, in, SessionMeta{})
	require.NoError(t, err)

	_, err = svc.Register(ctx, in, SessionMeta{})
	assert.True(t, apperror.IsConflict(err))
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("Password123"), bcrypt.MinCost)
	blocked := &models.User{ID: uuid.New(), Email: "blocked@agency.es", PasswordHash: string(hash), Role: models.RoleClient}
	repo.usersByEmail[blocked.Email] = blocked
	repo.usersByID[blocked.ID] = blocked

	_, err := svc.Login(ctx, LoginInput{Email: "missing@agency.es", Password: "Password123"}, SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: blocked.Email, Password: "wrong"}, SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: blocked.Email, Password: "Password123"}, SessionMeta{})
	assert.True(t, apperror.IsForbidden(err))
	assert.Empty(t, repo.sessions)
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "rot@agency.es", Password: "Password123", Role: models.RoleClient}, SessionMeta{})
	require.NoError(t, err)
	oldToken := res.TokenPair.RefreshToken

	pair, err := svc.Refresh(ctx, oldToken, SessionMeta{UserAgent: "test"})
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, pair.RefreshToken)

	_, oldExists := repo.sessions[oldToken]
	assert.False(t, oldExists)
	_, newExists := repo.sessions[pair.RefreshToken]
	assert.True(t, newExists)
}

func TestAuthService_RefreshReuseRevokesAllSessions(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "reuse@agency.es", Password: "Password123", Role: models.RoleClient}, SessionMeta{})
	require.NoError(t, err)
	stolen := res.TokenPair.RefreshToken

	_, err = svc.Refresh(ctx, stolen, SessionMeta{})
	require.NoError(t, err)
	require.Len(t, repo.sessions, 1)

	_, err = svc.Refresh(ctx, stolen, SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Empty(t, repo.sessions)
}

func TestAuthService_RefreshInvalidToken(t *testing.T) {
	svc, _, _ := newTestAuthService()

	_, err := svc.Refresh(context.Background(), "not-a-token", SessionMeta{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestAuthService_Logout(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "out@agency.es", Password: "Password123", Role: models.RoleFreelancer}, SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.TokenPair.RefreshToken))
	assert.Empty(t, repo.sessions)
	assert.NoError(t, svc.Logout(ctx, res.TokenPair.RefreshToken))
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("a", "b", time.Minute, time.Hour)
	other := NewTokenManager("x", "y", time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleClient}

	pair, _, err := tm.GeneratePair(user)
	require.NoError(t, err)

	_, _, err = other.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
	_, err = tm.ParseRefresh(pair.AccessToken)
	assert.Error(t, err)
}
