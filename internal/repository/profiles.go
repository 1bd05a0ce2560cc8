package repository

import (
	"context"
	"errors"

	"webcarros/internal/docstore"
	"webcarros/internal/models"
)

// ProfilesCollection maps identity ids to display names.
const ProfilesCollection = "users"

// ProfileRepository reads and writes display names.
type ProfileRepository interface {
	GetProfile(ctx context.Context, uid string) (*models.Profile, error)
	PutProfile(ctx context.Context, profile *models.Profile) error
}

type profileRepository struct {
	store docstore.Store
}

// NewProfileRepository returns a ProfileRepository over the document store.
func NewProfileRepository(store docstore.Store) ProfileRepository {
	return &profileRepository{store: store}
}

func (r *profileRepository) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	snap, err := r.store.Get(ctx, ProfilesCollection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, models.NewNotFoundError("Profile", uid)
		}
		return nil, models.NewInternalError(err)
	}
	var profile models.Profile
	if err := fromRecord(snap.Data, &profile); err != nil {
		return nil, models.NewInternalError(err)
	}
	if profile.UID == "" {
		profile.UID = snap.ID
	}
	return &profile, nil
}

func (r *profileRepository) PutProfile(ctx context.Context, profile *models.Profile) error {
	rec, err := toRecord(profile)
	if err != nil {
		return models.NewWriteError(err)
	}
	if err := r.store.Set(ctx, ProfilesCollection, profile.UID, rec); err != nil {
		return models.NewWriteError(err)
	}
	return nil
}
