package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/storage"
)

var (
	pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}
	pdfHeader = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
)

type fakeMediaRepository struct {
	items     map[uuid.UUID]*models.MediaFile
	createErr error
}

func (r *fakeMediaRepository) Create(_ context.Context, media *models.MediaFile) error {
	if r.createErr != nil {
		return r.createErr
	}
	media.ID = uuid.New()
	r.items[media.ID] = media
	return nil
}

func (r *fakeMediaRepository) GetByID(_ context.Context, id uuid.UUID) (*models.MediaFile, error) {
	m, ok := r.items[id]
	if !ok {
		return nil, repository.ErrMediaNotFound
	}
	return m, nil
}

func (r *fakeMediaRepository) Delete(_ context.Context, id, ownerID uuid.UUID) (string, error) {
	m, ok := r.items[id]
	if !ok || m.UserID == nil || *m.UserID != ownerID {
		return "", repository.ErrMediaNotFound
	}
	delete(r.items, id)
	return m.FilePath, nil
}

type fakeFileStore struct {
	files   map[string][]byte
	maxSize int64
}

func (s *fakeFileStore) Save(_ context.Context, userID uuid.UUID, ext string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", 0, storage.ErrTooLarge
	}
	rel := userID.String() + "/" + uuid.NewString() + "." + ext
	s.files[rel] = data
	return rel, int64(len(data)), nil
}

func (s *fakeFileStore) Path(rel string) (string, error) {
	return "/data/" + rel, nil
}

func (s *fakeFileStore) Delete(_ context.Context, rel string) error {
	delete(s.files, rel)
	return nil
}

func newMediaFixture() (*MediaService, *fakeMediaRepository, *fakeFileStore) {
	repo := &fakeMediaRepository{items: map[uuid.UUID]*models.MediaFile{}}
	files := &fakeFileStore{files: map[string][]byte{}}
	return NewMediaService(repo, files), repo, files
}

func TestMediaService_Upload_Image(t *testing.T) {
	svc, _, files := newMediaFixture()
	userID := uuid.New()

	media, err := svc.Upload(context.Background(), userID, "banner.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", media.FileType)
	assert.True(t, media.IsPublic)
	assert.Equal(t, int64(len(pngHeader)), media.FileSize)
	assert.Equal(t, pngHeader, files.files[media.FilePath])
}

func TestMediaService_Upload_PDFIsPrivate(t *testing.T) {
	svc, _, _ := newMediaFixture()
	owner := uuid.New()

	media, err := svc.Upload(context.Background(), owner, "report.pdf", bytes.NewReader(pdfHeader))
	require.NoError(t, err)
	assert.False(t, media.IsPublic)

	_, _, err = svc.Open(context.Background(), Actor{ID: uuid.New(), Role: models.RoleClient}, media.ID)
	assert.True(t, apperror.IsForbidden(err))

	_, path, err := svc.Open(context.Background(), Actor{ID: owner, Role: models.RoleFreelancer}, media.ID)
	require.NoError(t, err)
	assert.Contains(t, path, media.FilePath)

	_, _, err = svc.Open(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, media.ID)
	assert.NoError(t, err)
}

func TestMediaService_Upload_Rejects(t *testing.T) {
	svc, _, _ := newMediaFixture()
	userID := uuid.New()

	_, err := svc.Upload(context.Background(), userID, "empty.png", bytes.NewReader(nil))
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Upload(context.Background(), userID, "notes.txt", bytes.NewReader([]byte("просто текст")))
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Upload(context.Background(), userID, "fake.jpg", bytes.NewReader(pngHeader))
	assert.True(t, apperror.IsValidation(err))
}

func TestMediaService_Upload_TooLarge(t *testing.T) {
	svc, _, files := newMediaFixture()
	files.maxSize = 4

	_, err := svc.Upload(context.Background(), uuid.New(), "banner.png", bytes.NewReader(pngHeader))
	assert.True(t, apperror.IsValidation(err))
}

func TestMediaService_Upload_RemovesOrphanOnDBError(t *testing.T) {
	svc, repo, files := newMediaFixture()
	repo.createErr = errors.New("db down")

	_, err := svc.Upload(context.Background(), uuid.New(), "banner.png", bytes.NewReader(pngHeader))
	require.Error(t, err)
	assert.Empty(t, files.files)
}

func TestMediaService_Delete(t *testing.T) {
	svc, _, files := newMediaFixture()
	owner := uuid.New()
	media, err := svc.Upload(context.Background(), owner, "banner.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	err = svc.Delete(context.Background(), uuid.New(), media.ID)
	assert.True(t, apperror.IsNotFound(err))

	require.NoError(t, svc.Delete(context.Background(), owner, media.ID))
	assert.Empty(t, files.files)
}
