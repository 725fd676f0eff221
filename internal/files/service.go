package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
)

// MetadataStore is the persistence surface the service depends on.
// Implemented by Repository.
type MetadataStore interface {
	Create(ctx context.Context, f *File) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	Get(ctx context.Context, id uuid.UUID) (*File, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope string, limit, offset int) ([]File, error)
}

// Service coordinates metadata and object storage so that neither is left
// pointing at the other's garbage: metadata is written first in the
// uploading state and only flipped to completed once the object is stored.
type Service struct {
	repo   MetadataStore
	store  *ObjectStore
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo MetadataStore, store *ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, logger: logger}
}

// UploadInput describes one incoming file.
type UploadInput struct {
	AppIdentifier string
	OwnerID       *uuid.UUID
	Filename      string
	Size          int64
	ContentType   string
	Body          io.Reader
}

// Upload stores the object and its metadata.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*File, error) {
	if in.AppIdentifier == "" {
		return nil, fmt.Errorf("%w: app identifier required", httpx.ErrValidation)
	}
	if in.Filename == "" {
		return nil, fmt.Errorf("%w: filename required", httpx.ErrValidation)
	}

	id := uuid.New()
	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%s%s",
		in.AppIdentifier, now.Year(), now.Month(), id, path.Ext(in.Filename))

	f := &File{
		ID:            id,
		OwnerID:       in.OwnerID,
		AppIdentifier: in.AppIdentifier,
		Filename:      in.Filename,
		Size:          in.Size,
		ContentType:   in.ContentType,
		Category:      Categorize(in.Filename),
		StoragePath:   key,
		Status:        StatusUploading,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, key, in.ContentType, in.Body); err != nil {
		if mErr := s.repo.SetStatus(ctx, f.ID, StatusFailed); mErr != nil {
			s.logger.Warn("mark upload failed", slog.String("file_id", f.ID.String()), slog.Any("error", mErr))
		}
		return nil, err
	}
	if err := s.repo.SetStatus(ctx, f.ID, StatusCompleted); err != nil {
		return nil, err
	}
	f.Status = StatusCompleted
	return f, nil
}

// Open returns the metadata and a reader over the object content. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*File, io.ReadCloser, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if f.Status != StatusCompleted {
		return nil, nil, fmt.Errorf("%w: file %s not completed", ErrNotFound, id)
	}
	body, err := s.store.Get(ctx, f.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return f, body, nil
}

// Delete removes the object first, then the metadata. A missing object is
// not fatal; orphaned metadata would be.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, f.StoragePath); err != nil {
		s.logger.Warn("delete object", slog.String("key", f.StoragePath), slog.Any("error", err))
	}
	return s.repo.Delete(ctx, id)
}

// List returns completed files for an app scope.
func (s *Service) List(ctx context.Context, scope string, limit, offset int) ([]File, error) {
	return s.repo.List(ctx, scope, limit, offset)
}
