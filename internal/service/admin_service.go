package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
)

// StatsRepository агрегаты площадки.
type StatsRepository interface {
	Stats(ctx context.Context) (*models.PlatformStats, error)
}

// UserAdminRepository управление пользователями.
type UserAdminRepository interface {
	ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool) error
}

// AdminService back-office площадки.
type AdminService struct {
	stats    StatsRepository
	users    UserAdminRepository
	cache    *CacheService
	statsTTL time.Duration
}

// NewAdminService создаёт сервис админки.
func NewAdminService(stats StatsRepository, users UserAdminRepository, cache *CacheService, statsTTL time.Duration) *AdminService {
	return &AdminService{stats: stats, users: users, cache: cache, statsTTL: statsTTL}
}

// Stats возвращает показатели площадки, кэшируя их на statsTTL.
func (s *AdminService) Stats(ctx context.Context) (*models.PlatformStats, error) {
	value, err := s.cache.GetOrSet(adminStatsKey, s.statsTTL, func() (any, error) {
		return s.stats.Stats(ctx)
	})
	if err != nil {
		return nil, translate(err, "не удалось посчитать статистику")
	}
	return value.(*models.PlatformStats), nil
}

// ListUsers возвращает пользователей по фильтру.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) (*Page[models.User], error) {
	if filter.Role != "" && filter.Role != models.RoleAdmin {
		if _, ok := models.ValidRoles[filter.Role]; !ok {
			return nil, apperror.Validation("неизвестная роль")
		}
	}
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.users.ListUsers(ctx, filter)
	if err != nil {
		return nil, translate(err, "не удалось получить пользователей")
	}
	return newPage(items, total, filter.Limit, filter.Offset), nil
}

// SetActive блокирует или разблокирует пользователя. Блокировка завершает его сессии.
func (s *AdminService) SetActive(ctx context.Context, admin Actor, userID uuid.UUID, active bool) error {
	if userID == admin.ID {
		return apperror.Conflict("нельзя изменить статус собственной учётной записи")
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return translate(err, "не удалось изменить статус пользователя")
	}
	s.cache.InvalidateStats()

	logger.Log.WithFields(logrus.Fields{
		"admin_id": admin.ID,
		"user_id":  userID,
		"active":   active,
	}).Warn("admin: изменён статус пользователя")
	return nil
}
