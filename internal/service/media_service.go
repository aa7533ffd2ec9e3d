package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/storage"
)

// Разрешённые типы: изображения для портфолио и PDF для результатов работ.
var allowedMedia = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"application/pdf": "pdf",
}

// MediaRepository зависимости MediaService.
type MediaRepository interface {
	Create(ctx context.Context, media *models.MediaFile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) (string, error)
}

// FileStore файловое хранилище.
type FileStore interface {
	Save(ctx context.Context, userID uuid.UUID, ext string, r io.Reader) (string, int64, error)
	Path(relativePath string) (string, error)
	Delete(ctx context.Context, relativePath string) error
}

// MediaService загрузка и выдача файлов.
type MediaService struct {
	repo  MediaRepository
	files FileStore
}

// NewMediaService создаёт сервис файлов.
func NewMediaService(repo MediaRepository, files FileStore) *MediaService {
	return &MediaService{repo: repo, files: files}
}

// Upload проверяет реальный тип файла по сигнатуре и сохраняет его.
// Изображения публичны, PDF доступны только владельцу и администратору.
func (s *MediaService) Upload(ctx context.Context, userID uuid.UUID, filename string, src io.ReadSeeker) (*models.MediaFile, error) {
	header := make([]byte, 512)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperror.BadRequest("не удалось прочитать файл")
	}
	if n == 0 {
		return nil, apperror.Validation("файл не может быть пустым")
	}

	kind, err := filetype.Match(header[:n])
	if err != nil || kind == filetype.Unknown {
		return nil, apperror.Validation("не удалось определить тип файла")
	}
	mime := kind.MIME.Value
	ext, ok := allowedMedia[mime]
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("неподдерживаемый тип файла %s", mime))
	}
	if declared := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); declared != "" &&
		declared != ext && !(ext == "jpg" && declared == "jpeg") {
		return nil, apperror.Validation(fmt.Sprintf("расширение .%s не соответствует содержимому (%s)", declared, mime))
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, apperror.Internal(err, "не удалось прочитать файл")
	}

	relative, size, err := s.files.Save(ctx, userID, ext, src)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, apperror.Validation("файл превышает допустимый размер")
		}
		return nil, apperror.Internal(err, "не удалось сохранить файл")
	}

	media := &models.MediaFile{
		UserID:   &userID,
		FilePath: relative,
		FileType: mime,
		FileSize: size,
		IsPublic: strings.HasPrefix(mime, "image/"),
	}
	if err := s.repo.Create(ctx, media); err != nil {
		if delErr := s.files.Delete(ctx, relative); delErr != nil {
			logger.Log.WithField("path", relative).WithError(delErr).Warn("media: не удалось удалить файл-сироту")
		}
		return nil, translate(err, "не удалось сохранить файл")
	}

	logger.Log.WithFields(logrus.Fields{
		"media_id": media.ID,
		"user_id":  userID,
		"type":     mime,
		"size":     size,
	}).Info("media: файл загружен")

	return media, nil
}

// Open возвращает запись о файле и путь к нему на диске.
func (s *MediaService) Open(ctx context.Context, actor Actor, id uuid.UUID) (*models.MediaFile, string, error) {
	media, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", translate(err, "не удалось загрузить файл")
	}
	owner := media.UserID != nil && *media.UserID == actor.ID
	if !media.IsPublic && !owner && !actor.IsAdmin() {
		return nil, "", apperror.Forbidden("нет доступа к файлу")
	}
	path, err := s.files.Path(media.FilePath)
	if err != nil {
		return nil, "", apperror.Internal(err, "некорректный путь файла")
	}
	return media, path, nil
}

// Delete удаляет файл владельца.
func (s *MediaService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	path, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return translate(err, "не удалось удалить файл")
	}
	if err := s.files.Delete(ctx, path); err != nil {
		// запись уже удалена, файл останется на диске
		logger.Log.WithField("path", path).WithError(err).Warn("media: не удалось удалить файл с диска")
	}
	return nil
}
