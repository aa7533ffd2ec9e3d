package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	CreateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, refreshToken string) error
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	DeleteSessionByID(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error
	DeleteAllSessionsExcept(ctx context.Context, userID uuid.UUID, exceptRefreshToken string) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	Role        string
	DisplayName string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// SessionMeta сведения о клиенте, сохраняемые в сессии.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User    `json:"user"`
	Profile   *models.Profile `json:"profile,omitempty"`
	TokenPair *TokenPair      `json:"tokens"`
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register создаёт пользователя, профиль и первую сессию.
// Роль admin назначается только вручную.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta SessionMeta) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidateRole(in.Role); err != nil {
		return nil, validationError(err)
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = deriveUsername(in.Email)
	} else if err := validation.ValidateUsername(username); err != nil {
		return nil, validationError(err)
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, validationError(err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err, "не удалось захешировать пароль")
	}

	user := &models.User{
		Email:        in.Email,
		Username:     username,
		PasswordHash: string(passHash),
		Role:         in.Role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("email или имя пользователя уже заняты")
		}
		return nil, translate(err, "не удалось создать пользователя")
	}

	profile := &models.Profile{
		UserID:      user.ID,
		DisplayName: displayName,
		Skills:      []string{},
		Categories:  []string{},
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, translate(err, "не удалось создать профиль")
	}

	tokens, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("auth: пользователь зарегистрирован")

	return &AuthResult{User: user, Profile: profile, TokenPair: tokens}, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta SessionMeta) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, translate(err, "не удалось выполнить вход")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperror.Forbidden("аккаунт заблокирован")
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Warn("auth service: не удалось обновить last_login_at")
	}

	tokens, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		// профиль мог не создаться при регистрации
		profile = nil
	}

	return &AuthResult{User: user, Profile: profile, TokenPair: tokens}, nil
}

// Refresh обменивает refresh токен на новую пару. Повторное предъявление
// уже использованного токена считается кражей: все сессии пользователя закрываются.
func (s *AuthService) Refresh(ctx context.Context, oldToken string, meta SessionMeta) (*TokenPair, error) {
	userID, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, apperror.ErrUnauthorized
	}

	if err := s.repo.DeleteSession(ctx, oldToken); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			if revokeErr := s.repo.DeleteAllSessionsExcept(ctx, userID, ""); revokeErr != nil {
				logger.Log.WithError(revokeErr).WithField("user_id", userID).Error("auth: не удалось отозвать сессии")
			}
			logger.Log.WithField("user_id", userID).Warn("auth: повторное использование refresh токена, сессии отозваны")
			return nil, apperror.ErrUnauthorized
		}
		return nil, translate(err, "не удалось обновить сессию")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUnauthorized
		}
		return nil, translate(err, "не удалось обновить сессию")
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("аккаунт заблокирован")
	}

	return s.openSession(ctx, user, meta)
}

// Logout закрывает сессию по refresh токену.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repo.DeleteSession(ctx, refreshToken); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return translate(err, "не удалось завершить сессию")
	}
	return nil
}

// Me возвращает пользователя и его профиль.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*AuthResult, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить пользователя")
	}
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, translate(err, "не удалось загрузить профиль")
	}
	return &AuthResult{User: user, Profile: profile}, nil
}

// ListSessions возвращает список активных сессий пользователя.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось получить сессии")
	}
	return sessions, nil
}

// DeleteSession удаляет сессию по идентификатору.
func (s *AuthService) DeleteSession(ctx context.Context, sessionID uuid.UUID, userID uuid.UUID) error {
	return translate(s.repo.DeleteSessionByID(ctx, sessionID, userID), "не удалось удалить сессию")
}

// DeleteAllSessionsExcept удаляет все сессии пользователя кроме текущей.
func (s *AuthService) DeleteAllSessionsExcept(ctx context.Context, userID uuid.UUID, currentRefreshToken string) error {
	return translate(s.repo.DeleteAllSessionsExcept(ctx, userID, currentRefreshToken), "не удалось удалить сессии")
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, meta SessionMeta) (*TokenPair, error) {
	tokens, refreshExp, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Internal(err, "не удалось выпустить токены")
	}

	session := &models.Session{
		UserID:       user.ID,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    refreshExp,
	}
	if meta.UserAgent != "" {
		session.UserAgent = &meta.UserAgent
	}
	if meta.IP != "" {
		session.IPAddress = &meta.IP
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, translate(err, "не удалось сохранить сессию")
	}
	return tokens, nil
}

// deriveUsername формирует username из email.
func deriveUsername(email string) string {
	name := strings.Split(email, "@")[0]
	name = strings.NewReplacer(".", "_", "+", "_", "-", "_").Replace(name)
	name = strings.ToLower(name)
	if len(name) < 3 || (name[0] >= '0' && name[0] <= '9') {
		name = "user_" + name
	}
	if len(name) > 20 {
		name = name[:20]
	}
	// суффикс снижает шанс коллизии уникального username
	return name + "_" + uuid.NewString()[:4]
}
