package repository

import (
	"context"
	"errors"
	"log/slog"

	"webcarros/internal/docstore"
	"webcarros/internal/models"
	"webcarros/internal/observability"
)

// ListingsCollection is the document collection holding listings.
const ListingsCollection = "cars"

// ListingRepository defines storage operations for listings.
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) (string, error)
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error)
	List(ctx context.Context) ([]*models.Listing, error)
	Delete(ctx context.Context, id string) error
}

type listingRepository struct {
	store docstore.Store
}

// NewListingRepository returns a ListingRepository over the document store.
func NewListingRepository(store docstore.Store) ListingRepository {
	return &listingRepository{store: store}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) (string, error) {
	ctx, span := observability.StartSpan(ctx, "ListingRepository", "Create")
	rec, err := toRecord(listing)
	if err == nil {
		var id string
		id, err = r.store.Create(ctx, ListingsCollection, rec)
		if err == nil {
			observability.EndSpan(span, nil)
			return id, nil
		}
	}
	observability.EndSpan(span, err)
	return "", models.NewWriteError(err)
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	snap, err := r.store.Get(ctx, ListingsCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("Listing", id)
		}
		return nil, models.NewInternalError(err)
	}
	listing, err := decodeListing(*snap)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return listing, nil
}

func (r *listingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	snaps, err := r.store.Query(ctx, ListingsCollection, "uid", ownerID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return decodeListings(ctx, snaps), nil
}

func (r *listingRepository) List(ctx context.Context) ([]*models.Listing, error) {
	snaps, err := r.store.List(ctx, ListingsCollection)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return decodeListings(ctx, snaps), nil
}

// Delete removes only the record; images are the caller's concern.
func (r *listingRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, ListingsCollection, id); err != nil {
		return models.NewDeleteError(err)
	}
	return nil
}

func decodeListing(snap docstore.Snapshot) (*models.Listing, error) {
	var listing models.Listing
	if err := fromRecord(snap.Data, &listing); err != nil {
		return nil, err
	}
	listing.ID = snap.ID
	if listing.Images == nil {
		listing.Images = []models.ListingImage{}
	}
	return &listing, nil
}

// decodeListings skips documents that no longer decode instead of failing the page.
func decodeListings(ctx context.Context, snaps []docstore.Snapshot) []*models.Listing {
	out := make([]*models.Listing, 0, len(snaps))
	for _, snap := range snaps {
		listing, err := decodeListing(snap)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable listing", "listing_id", snap.ID, "err", err)
			continue
		}
		out = append(out, listing)
	}
	return out
}
