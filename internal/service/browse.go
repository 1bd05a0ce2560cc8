package service

import (
	"context"
	"sort"
	"strings"

	"webcarros/internal/models"
	"webcarros/internal/repository"
)

// Card is one listing summary on the browse or dashboard page.
type Card struct {
	Listing   *models.Listing
	Cover     models.ListingImage
	Thumbnail string
	Loaded    bool
}

// BrowseService lists every listing for the home page.
type BrowseService struct {
	listings repository.ListingRepository
	images   repository.ImageRepository
}

func NewBrowseService(listings repository.ListingRepository, images repository.ImageRepository) *BrowseService {
	return &BrowseService{listings: listings, images: images}
}

// Browse fetches the whole collection, newest first. A non-empty query keeps
// listings whose name contains it, case-insensitively.
func (s *BrowseService) Browse(ctx context.Context, loads *LoadTracker, query string) ([]Card, error) {
	all, err := s.listings.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToUpper(strings.TrimSpace(query))
	if query != "" {
		kept := all[:0]
		for _, l := range all {
			if strings.Contains(strings.ToUpper(l.Name), query) {
				kept = append(kept, l)
			}
		}
		all = kept
	}
	sortNewestFirst(all)
	return buildCards(ctx, s.images, all, loads), nil
}

func buildCards(ctx context.Context, images repository.ImageRepository, listings []*models.Listing, loads *LoadTracker) []Card {
	cards := make([]Card, 0, len(listings))
	for _, l := range listings {
		card := Card{Listing: l}
		if cover, ok := l.Cover(); ok {
			card.Cover = cover
			card.Thumbnail = cover.URL
			if images != nil {
				card.Thumbnail = images.ThumbnailURL(ctx, cover)
			}
		}
		if loads != nil {
			card.Loaded = loads.Loaded(l.ID)
		}
		cards = append(cards, card)
	}
	return cards
}

func sortNewestFirst(listings []*models.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].Created.After(listings[j].Created)
	})
}
