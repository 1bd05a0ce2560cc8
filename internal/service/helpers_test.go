package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"webcarros/internal/models"
	"webcarros/internal/notify"

	"github.com/stretchr/testify/require"
)

// listingRepoStub lets each test override only the calls it cares about.
type listingRepoStub struct {
	mu          sync.Mutex
	createFn    func(ctx context.Context, l *models.Listing) (string, error)
	getByIDFn   func(ctx context.Context, id string) (*models.Listing, error)
	listByOwner func(ctx context.Context, ownerID string) ([]*models.Listing, error)
	listFn      func(ctx context.Context) ([]*models.Listing, error)
	deleteFn    func(ctx context.Context, id string) error
	creates     int
}

func noopListingRepo() *listingRepoStub {
	return &listingRepoStub{
		createFn: func(context.Context, *models.Listing) (string, error) { return "car-1", nil },
		getByIDFn: func(_ context.Context, id string) (*models.Listing, error) {
			return nil, models.NewNotFoundError("Listing", id)
		},
		listByOwner: func(context.Context, string) ([]*models.Listing, error) { return nil, nil },
		listFn:      func(context.Context) ([]*models.Listing, error) { return nil, nil },
		deleteFn:    func(context.Context, string) error { return nil },
	}
}

func (s *listingRepoStub) Create(ctx context.Context, l *models.Listing) (string, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return s.createFn(ctx, l)
}

func (s *listingRepoStub) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

func (s *listingRepoStub) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	return s.getByIDFn(ctx, id)
}

func (s *listingRepoStub) ListByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	return s.listByOwner(ctx, ownerID)
}

func (s *listingRepoStub) List(ctx context.Context) ([]*models.Listing, error) {
	return s.listFn(ctx)
}

func (s *listingRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

// imageRepoStub records uploads and deletes.
type imageRepoStub struct {
	mu       sync.Mutex
	uploadFn func(ctx context.Context, ownerID string, blob []byte, ct string) (*models.ListingImage, error)
	deleteFn func(ctx context.Context, ownerID, name string) error
	uploads  int
	deletes  []string
}

func noopImageRepo() *imageRepoStub {
	n := 0
	var mu sync.Mutex
	return &imageRepoStub{
		uploadFn: func(_ context.Context, ownerID string, _ []byte, _ string) (*models.ListingImage, error) {
			mu.Lock()
			n++
			name := "img-" + string(rune('a'+n-1))
			mu.Unlock()
			url := "/media/images/" + ownerID + "/" + name
			return &models.ListingImage{UID: ownerID, Name: name, URL: url, PreviewURL: url}, nil
		},
		deleteFn: func(context.Context, string, string) error { return nil },
	}
}

func (s *imageRepoStub) Upload(ctx context.Context, ownerID string, blob []byte, ct string) (*models.ListingImage, error) {
	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()
	return s.uploadFn(ctx, ownerID, blob, ct)
}

func (s *imageRepoStub) Delete(ctx context.Context, ownerID, name string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, name)
	s.mu.Unlock()
	return s.deleteFn(ctx, ownerID, name)
}

func (s *imageRepoStub) ThumbnailURL(_ context.Context, img models.ListingImage) string {
	return img.URL + ".thumb"
}

func (s *imageRepoStub) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

var errBoom = errors.New("boom")

func pngBlob(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func lastToast(t *testing.T, q *notify.Queue) notify.Toast {
	t.Helper()
	pending := q.Pending()
	require.NotEmpty(t, pending, "expected a toast")
	return pending[len(pending)-1]
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, models.HasCode(err, models.CodeValidation), "expected validation error, got %v", err)
}

func validForm() ListingForm {
	return ListingForm{
		Name:        "onix",
		Model:       "1.0",
		Year:        "2020",
		Km:          "1000",
		Price:       "50000",
		City:        "Fortaleza",
		WhatsApp:    "85912345678",
		Description: "ok",
	}
}

var ana = &models.Identity{ID: "u1", Name: "Ana Souza"}

var bruno = &models.Identity{ID: "u2", Name: "Bruno Lima"}
