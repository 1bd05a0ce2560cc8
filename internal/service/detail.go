package service

import (
	"context"
	"net/url"
	"strconv"

	"webcarros/internal/models"
	"webcarros/internal/repository"
)

const (
	// CarouselBreakpoint is the viewport width from which two slides are shown.
	CarouselBreakpoint = 720
	// DesktopWidth is assumed when the browser sends no viewport hint.
	DesktopWidth = 1280
)

// Carousel is the detail page slider. Resizing changes only the slide count.
type Carousel struct {
	slides  []models.ListingImage
	perView int
}

func NewCarousel(images []models.ListingImage, width int) *Carousel {
	return &Carousel{slides: images, perView: SlidesPerView(width)}
}

// SlidesPerView is 1 below the breakpoint and 2 at or above it.
func SlidesPerView(width int) int {
	if width <= 0 {
		width = DesktopWidth
	}
	if width < CarouselBreakpoint {
		return 1
	}
	return 2
}

// Resize recomputes the slide count and reports whether it changed.
func (c *Carousel) Resize(width int) bool {
	next := SlidesPerView(width)
	if next == c.perView {
		return false
	}
	c.perView = next
	return true
}

func (c *Carousel) PerView() int { return c.perView }

func (c *Carousel) Slides() []models.ListingImage { return c.slides }

// ParseViewportWidth reads a client hint or query value, returning 0 when absent or bogus.
func ParseViewportWidth(values ...string) int {
	for _, v := range values {
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return int(f)
		}
	}
	return 0
}

// ContactLink is the WhatsApp deep link shown on the detail page.
func ContactLink(l *models.Listing) string {
	msg := "Olá, encontrei o carro " + l.Name + " na plataforma WebCarros e fiquei interessado!"
	return "https://api.whatsapp.com/send?phone=+55" + url.QueryEscape(l.WhatsApp) + "&text=" + url.QueryEscape(msg)
}

// Detail is everything the car page renders.
type Detail struct {
	Listing  *models.Listing
	Carousel *Carousel
	Contact  string
}

// DetailService loads one listing for the car page.
type DetailService struct {
	listings repository.ListingRepository
}

func NewDetailService(listings repository.ListingRepository) *DetailService {
	return &DetailService{listings: listings}
}

// Get returns models.ErrNotFound (as a NotFoundError) when the listing is absent.
func (s *DetailService) Get(ctx context.Context, id string, width int) (*Detail, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Listing:  listing,
		Carousel: NewCarousel(listing.Images, width),
		Contact:  ContactLink(listing),
	}, nil
}
