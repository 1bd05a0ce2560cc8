package repository

import (
	"context"
	"errors"
	"log/slog"

	"webcarros/internal/imaging"
	"webcarros/internal/models"
	"webcarros/internal/objectstore"
	"webcarros/internal/observability"

	"github.com/google/uuid"
)

// ImageRepository stores listing photos in the object store.
type ImageRepository interface {
	Upload(ctx context.Context, ownerID string, blob []byte, contentType string) (*models.ListingImage, error)
	Delete(ctx context.Context, ownerID, name string) error
	// ThumbnailURL is the browse thumbnail URL, falling back to the full image.
	ThumbnailURL(ctx context.Context, img models.ListingImage) string
}

type imageRepository struct {
	store objectstore.Store
}

// NewImageRepository returns an ImageRepository over the object store.
func NewImageRepository(store objectstore.Store) ImageRepository {
	return &imageRepository{store: store}
}

func (r *imageRepository) Upload(ctx context.Context, ownerID string, blob []byte, contentType string) (*models.ListingImage, error) {
	name := uuid.NewString()
	path := models.ImagePath(ownerID, name)

	handle, err := r.store.Upload(ctx, path, blob, contentType)
	if err != nil {
		observability.ImageOperations.WithLabelValues("upload", "error").Inc()
		return nil, models.NewUploadError(err)
	}
	url, err := r.store.ResolveURL(ctx, handle)
	if err != nil {
		_ = r.store.Delete(ctx, path)
		observability.ImageOperations.WithLabelValues("upload", "error").Inc()
		return nil, models.NewUploadError(err)
	}
	observability.ImageOperations.WithLabelValues("upload", "success").Inc()

	r.writeThumbnail(ctx, ownerID, name, blob)

	return &models.ListingImage{UID: ownerID, Name: name, URL: url, PreviewURL: url}, nil
}

func (r *imageRepository) writeThumbnail(ctx context.Context, ownerID, name string, blob []byte) {
	thumb, err := imaging.Thumbnail(blob, imaging.ThumbnailSize)
	if err == nil {
		_, err = r.store.Upload(ctx, models.ThumbnailPath(ownerID, name), thumb, imaging.ContentTypeWebP)
	}
	if err != nil {
		slog.WarnContext(ctx, "thumbnail generation failed", "owner_id", ownerID, "image", name, "err", err)
	}
}

func (r *imageRepository) Delete(ctx context.Context, ownerID, name string) error {
	err := r.store.Delete(ctx, models.ImagePath(ownerID, name))
	observability.ImageOperations.WithLabelValues("delete", observability.Outcome(err)).Inc()
	if err != nil {
		return models.NewDeleteError(err)
	}

	if err := r.store.Delete(ctx, models.ThumbnailPath(ownerID, name)); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		slog.WarnContext(ctx, "thumbnail delete failed", "owner_id", ownerID, "image", name, "err", err)
	}
	return nil
}

func (r *imageRepository) ThumbnailURL(ctx context.Context, img models.ListingImage) string {
	path := models.ThumbnailPath(img.UID, img.Name)
	rc, _, err := r.store.Open(ctx, path)
	if err != nil {
		return img.URL
	}
	rc.Close()
	url, err := r.store.ResolveURL(ctx, objectstore.Handle{Path: path})
	if err != nil {
		return img.URL
	}
	return url
}
