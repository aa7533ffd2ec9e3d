package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

// ErrMediaNotFound сигнализирует об отсутствии файла.
var ErrMediaNotFound = errors.New("media not found")

// MediaRepository работает с таблицей media_files.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository создаёт экземпляр.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create сохраняет запись о загруженном файле.
func (r *MediaRepository) Create(ctx context.Context, media *models.MediaFile) error {
	if err := r.db.QueryRowxContext(ctx, `
		INSERT INTO media_files (user_id, file_path, file_type, file_size, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		media.UserID, media.FilePath, media.FileType, media.FileSize, media.IsPublic,
	).Scan(&media.ID, &media.CreatedAt); err != nil {
		return fmt.Errorf("media repository: create %w", err)
	}
	return nil
}

// GetByID возвращает запись о файле.
func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaFile, error) {
	var media models.MediaFile
	err := r.db.GetContext(ctx, &media,
		`SELECT id, user_id, file_path, file_type, file_size, is_public, created_at FROM media_files WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("media repository: get by id %w", err)
	}
	return &media, nil
}

// Delete удаляет файл владельца и возвращает его путь в хранилище.
func (r *MediaRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) (string, error) {
	var path string
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM media_files WHERE id = $1 AND user_id = $2 RETURNING file_path`, id, ownerID,
	).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrMediaNotFound
		}
		return "", fmt.Errorf("media repository: delete %w", err)
	}
	return path, nil
}
