package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
)

// ErrorHandler отвечает на ошибки, добавленные через c.Error, если ответ ещё не отправлен.
// Внутренние ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()

		if appErr, ok := apperror.As(err.Err); ok && appErr.HTTPStatus < http.StatusInternalServerError {
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
			return
		}

		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("http: ошибка запроса")

		c.JSON(http.StatusInternalServerError, gin.H{"error": "внутренняя ошибка сервера"})
	}
}
