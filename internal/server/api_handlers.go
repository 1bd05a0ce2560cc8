package server

import (
	"errors"
	"mime"
	"path"
	"strings"

	"webcarros/internal/imaging"
	"webcarros/internal/middleware"
	"webcarros/internal/models"
	"webcarros/internal/objectstore"
	"webcarros/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListingResponse is a listing as returned by the JSON API.
type ListingResponse struct {
	ID string `json:"id"`
	*models.Listing
	PriceText string `json:"price_text"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

func toListingResponse(l *models.Listing, thumbnail string) ListingResponse {
	if l.Images == nil {
		l.Images = []models.ListingImage{}
	}
	return ListingResponse{ID: l.ID, Listing: l, PriceText: l.Price.String(), Thumbnail: thumbnail}
}

func cardsResponse(cards []service.Card) []ListingResponse {
	out := make([]ListingResponse, 0, len(cards))
	for _, card := range cards {
		out = append(out, toListingResponse(card.Listing, card.Thumbnail))
	}
	return out
}

// GetListings handles GET /api/listings
// @Summary List listings
// @Description Every listing, newest first, optionally filtered by name
// @Tags listings
// @Produce json
// @Param q query string false "Name filter"
// @Success 200 {array} ListingResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /listings [get]
func (s *Server) GetListings(c *fiber.Ctx) error {
	cards, err := s.browseService.Browse(c.UserContext(), nil, c.Query("q"))
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(cardsResponse(cards))
}

// GetListing handles GET /api/listings/:id
// @Summary Get a listing
// @Tags listings
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} ListingResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id} [get]
func (s *Server) GetListing(c *fiber.Ctx) error {
	listing, err := s.listingRepo.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	resp := toListingResponse(listing, "")
	return c.JSON(fiber.Map{
		"listing": resp,
		"contact": service.ContactLink(listing),
	})
}

// GetMyListings handles GET /api/me/listings
// @Summary List my listings
// @Tags listings
// @Produce json
// @Security BearerAuth
// @Success 200 {array} ListingResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /me/listings [get]
func (s *Server) GetMyListings(c *fiber.Ctx) error {
	cards, err := s.ownerFlow.List(c.UserContext(), middleware.UserID(c), nil)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(cardsResponse(cards))
}

// GetSession handles GET /api/session
// @Summary Current browser session
// @Description Identity of the client session cookie, or null. loading is true while the auth check runs.
// @Tags session
// @Produce json
// @Success 200 {object} object{loading=bool,identity=object{id=string,name=string,first_name=string}}
// @Router /session [get]
func (s *Server) GetSession(c *fiber.Ctx) error {
	st := sessionState(c)
	resp := fiber.Map{"loading": st.Loading, "identity": nil}
	if st.Identity != nil {
		resp["identity"] = fiber.Map{
			"id":         st.Identity.ID,
			"name":       st.Identity.Name,
			"first_name": st.Identity.FirstName(),
		}
	}
	return c.JSON(resp)
}

// MarkCardLoaded handles POST /api/cards/:id/loaded
func (s *Server) MarkCardLoaded(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	id := c.Params("id")
	if id == "" || len(id) > 64 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid ID"))
	}
	s.workspaces.Loads(client.ID).MarkLoaded(id)
	return c.SendStatus(fiber.StatusNoContent)
}

// ServeMedia handles GET /media/* from the object store.
func (s *Server) ServeMedia(c *fiber.Ctx) error {
	p := strings.TrimPrefix(c.Params("*"), "/")
	rc, obj, err := s.objects.Open(c.UserContext(), p)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrInvalidPath) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		// Image names carry no extension; sniff the first bytes instead.
		head := make([]byte, 512)
		n, _ := rc.Read(head)
		rc.Close()
		contentType = imaging.DetectContentType(head[:n])
		rc, obj, err = s.objects.Open(c.UserContext(), p)
		if err != nil {
			return c.SendStatus(fiber.StatusNotFound)
		}
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400, immutable")
	c.Set("X-Content-Type-Options", "nosniff")
	return c.SendStream(rc, int(obj.Size))
}
