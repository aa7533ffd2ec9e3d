package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/http/middleware"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

var (
	// ErrUserNotFound пользователя нет в контексте запроса.
	ErrUserNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidUUID параметр не является UUID.
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// CurrentUserID извлекает userID, установленный AuthMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}

	return userID, nil
}

// CurrentUserRole извлекает роль из контекста.
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", ErrUserNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}

	return role, nil
}

// CurrentActor собирает service.Actor из контекста. При ошибке уже ответил 401.
func CurrentActor(c *gin.Context) (service.Actor, bool) {
	userID, err := CurrentUserID(c)
	if err != nil {
		RespondUnauthorized(c, "")
		return service.Actor{}, false
	}
	role, err := CurrentUserRole(c)
	if err != nil {
		RespondUnauthorized(c, "")
		return service.Actor{}, false
	}
	return service.Actor{ID: userID, Role: role}, true
}

// ParseUUIDParam разбирает UUID из параметра пути.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// PathUUID разбирает параметр пути и отвечает 400, если он некорректен.
func PathUUID(c *gin.Context, paramName string) (uuid.UUID, bool) {
	id, err := ParseUUIDParam(c, paramName)
	if err != nil {
		RespondBadRequest(c, fmt.Sprintf("параметр %s должен быть UUID", paramName))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON разбирает тело запроса и отвечает 400 при ошибке.
func BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondBadRequest(c, fmt.Sprintf("ошибка валидации запроса: %v", err))
		return false
	}
	return true
}

// RespondError отправляет ошибку в стандартном формате.
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// RespondServiceError отвечает по AppError. Прочие ошибки логируются и маскируются как 500.
func RespondServiceError(c *gin.Context, err error) {
	if appErr, ok := apperror.As(err); ok {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Log.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"code":   appErr.Code,
			}).WithError(appErr.Cause).Error("http: ошибка сервиса")
		}
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).WithError(err).Error("http: необработанная ошибка")
	RespondInternalError(c, "")
}

// RespondUnauthorized отвечает 401.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	RespondError(c, http.StatusUnauthorized, message)
}

// RespondBadRequest отвечает 400.
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "некорректный запрос"
	}
	RespondError(c, http.StatusBadRequest, message)
}

// RespondInternalError отвечает 500.
func RespondInternalError(c *gin.Context, message string) {
	if message == "" {
		message = "внутренняя ошибка сервера"
	}
	RespondError(c, http.StatusInternalServerError, message)
}

// ParseIntQuery читает целочисленный query-параметр со значением по умолчанию.
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// ParseFloatQuery читает дробный query-параметр; nil, если он не задан.
func ParseFloatQuery(c *gin.Context, key string) *float64 {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// GetPagination читает limit и offset. Границы проверяет сервис.
func GetPagination(c *gin.Context) (limit, offset int) {
	return ParseIntQuery(c, "limit", 20), ParseIntQuery(c, "offset", 0)
}
