package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"webcarros/internal/models"
	"webcarros/internal/notify"
	"webcarros/internal/observability"
	"webcarros/internal/repository"
)

const msgListingDeleted = "Carro deletado com sucesso!"

// DeleteResult reports how a listing deletion went once every image resolved.
type DeleteResult struct {
	ListingID    string
	Removed      bool
	FailedImages []string
}

// OwnerFlow backs the dashboard: the identity's own listings and their deletion.
type OwnerFlow struct {
	listings repository.ListingRepository
	images   repository.ImageRepository
}

func NewOwnerFlow(listings repository.ListingRepository, images repository.ImageRepository) *OwnerFlow {
	return &OwnerFlow{listings: listings, images: images}
}

// List returns the owner's listings as cards, newest first.
func (f *OwnerFlow) List(ctx context.Context, ownerID string, loads *LoadTracker) ([]Card, error) {
	mine, err := f.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(mine)
	return buildCards(ctx, f.images, mine, loads), nil
}

// Delete removes the record first, then tries every image independently. The
// record deletion stands even when image deletions fail.
func (f *OwnerFlow) Delete(ctx context.Context, who *models.Identity, listingID string, toasts notify.Notifier) (*DeleteResult, error) {
	if who == nil {
		return nil, models.NewUnauthorizedError("Faça login para deletar um carro")
	}
	listing, err := f.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.UID != who.ID {
		return nil, models.NewUnauthorizedError("Este carro pertence a outro usuário")
	}

	if err := f.listings.Delete(ctx, listingID); err != nil {
		slog.ErrorContext(ctx, "listing delete failed", "user_id", who.ID, "listing_id", listingID, "err", err)
		observability.ListingsDeleted.WithLabelValues("error").Inc()
		toasts.Error("Erro ao deletar carro")
		return nil, err
	}

	failed := f.deleteImages(ctx, listing.Images)
	result := &DeleteResult{ListingID: listingID, Removed: true, FailedImages: failed}

	if len(failed) == 0 {
		observability.ListingsDeleted.WithLabelValues("success").Inc()
		toasts.Success(msgListingDeleted)
	} else {
		observability.ListingsDeleted.WithLabelValues("partial").Inc()
		slog.WarnContext(ctx, "listing deleted with leftover images", "listing_id", listingID, "failed", len(failed))
		toasts.Error(fmt.Sprintf("Carro deletado, mas %d imagem(ns) não puderam ser removidas", len(failed)))
	}
	return result, nil
}

func (f *OwnerFlow) deleteImages(ctx context.Context, images []models.ListingImage) []string {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed []string
	)
	for _, img := range images {
		wg.Add(1)
		go func(img models.ListingImage) {
			defer wg.Done()
			if err := f.images.Delete(ctx, img.UID, img.Name); err != nil {
				slog.WarnContext(ctx, "image delete failed", "image", img.StoragePath(), "err", err)
				mu.Lock()
				failed = append(failed, img.Name)
				mu.Unlock()
			}
		}(img)
	}
	wg.Wait()
	return failed
}
