package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// MediaHandler обслуживает загрузку и выдачу файлов.
type MediaHandler struct {
	media *service.MediaService
}

// NewMediaHandler создаёт хэндлер.
func NewMediaHandler(media *service.MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// Upload обрабатывает POST /media (multipart, поле file).
func (h *MediaHandler) Upload(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл обязателен (поле file)")
		return
	}

	file, err := header.Open()
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}
	defer file.Close()

	media, err := h.media.Upload(c.Request.Context(), userID, header.Filename, file)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, media)
}

// Serve обрабатывает GET /media/:id. Приватные файлы отдаются только владельцу и администратору.
func (h *MediaHandler) Serve(c *gin.Context) {
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var actor service.Actor
	if userID, err := common.CurrentUserID(c); err == nil {
		role, _ := common.CurrentUserRole(c)
		actor = service.Actor{ID: userID, Role: role}
	}

	media, path, err := h.media.Open(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Header("Content-Type", media.FileType)
	if !media.IsPublic {
		c.Header("Cache-Control", "private, no-store")
	}
	c.File(path)
}

// Delete обрабатывает DELETE /media/:id.
func (h *MediaHandler) Delete(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.media.Delete(c.Request.Context(), userID, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
