package repository

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"webcarros/internal/docstore"
	"webcarros/internal/models"
	"webcarros/internal/objectstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDocstore(t *testing.T) docstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&docstore.Document{}))
	return docstore.NewGormStore(db)
}

func setupObjects(t *testing.T) (*objectstore.DiskStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := objectstore.NewDiskStore(root, "/media")
	require.NoError(t, err)
	return s, root
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := 0; x < 8; x++ {
		for y := 0; y < 6; y++ {
			img.Set(x, y, color.RGBA{G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sampleListing(uid string) *models.Listing {
	return &models.Listing{
		Name:        "FUSCA",
		Model:       "1.6 Fafá",
		Year:        "1978/1978",
		Km:          "120000",
		Price:       6900000,
		City:        "Campo Grande",
		WhatsApp:    "67999998888",
		Description: "Conservado",
		Created:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Owner:       "Ana",
		UID:         uid,
		Images:      []models.ListingImage{{UID: uid, Name: "img-1", URL: "/media/images/" + uid + "/img-1"}},
	}
}

func TestListingRepository_CreateGet(t *testing.T) {
	repo := NewListingRepository(setupDocstore(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, sampleListing("u1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "FUSCA", got.Name)
	assert.Equal(t, models.Money(6900000), got.Price)
	assert.True(t, got.Created.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.Len(t, got.Images, 1)
	assert.Equal(t, "img-1", got.Images[0].Name)
	assert.Empty(t, got.Images[0].PreviewURL)
}

func TestListingRepository_RoundTripsEveryImage(t *testing.T) {
	repo := NewListingRepository(setupDocstore(t))
	ctx := context.Background()

	listing := sampleListing("u1")
	listing.Images = []models.ListingImage{
		{UID: "u1", Name: "A", URL: "/media/images/u1/A", PreviewURL: "blob:a"},
		{UID: "u1", Name: "B", URL: "/media/images/u1/B", PreviewURL: "blob:b"},
	}
	id, err := repo.Create(ctx, listing)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []models.ListingImage{
		{UID: "u1", Name: "A", URL: "/media/images/u1/A"},
		{UID: "u1", Name: "B", URL: "/media/images/u1/B"},
	}, got.Images)
}

func TestListingRepository_GetByIDMissing(t *testing.T) {
	repo := NewListingRepository(setupDocstore(t))

	_, err := repo.GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestListingRepository_ListByOwner(t *testing.T) {
	repo := NewListingRepository(setupDocstore(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, sampleListing("u1"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, sampleListing("u2"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, sampleListing("u1"))
	require.NoError(t, err)

	mine, err := repo.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, l := range mine {
		assert.Equal(t, "u1", l.UID)
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListingRepository_Delete(t *testing.T) {
	repo := NewListingRepository(setupDocstore(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, sampleListing("u1"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, id))

	err = repo.Delete(ctx, id)
	assert.True(t, models.HasCode(err, models.CodeDelete))
}

func TestProfileRepository(t *testing.T) {
	repo := NewProfileRepository(setupDocstore(t))
	ctx := context.Background()

	_, err := repo.GetProfile(ctx, "u1")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, repo.PutProfile(ctx, &models.Profile{UID: "u1", Name: "Ana Souza"}))
	require.NoError(t, repo.PutProfile(ctx, &models.Profile{UID: "u1", Name: "Ana S."}))

	p, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana S.", p.Name)
}

func TestImageRepository_UploadWritesThumbnail(t *testing.T) {
	objects, root := setupObjects(t)
	repo := NewImageRepository(objects)
	ctx := context.Background()

	img, err := repo.Upload(ctx, "u1", samplePNG(t), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "u1", img.UID)
	assert.Len(t, img.Name, 36)
	assert.Equal(t, "/media/images/u1/"+img.Name, img.URL)
	assert.Equal(t, img.URL, img.PreviewURL)

	_, err = os.Stat(filepath.Join(root, "images", "u1", img.Name))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "thumbs", "u1", img.Name+".webp"))
	require.NoError(t, err)

	assert.Equal(t, "/media/thumbs/u1/"+img.Name+".webp", repo.ThumbnailURL(ctx, *img))
}

func TestImageRepository_UploadUndecodableSkipsThumbnail(t *testing.T) {
	objects, root := setupObjects(t)
	repo := NewImageRepository(objects)
	ctx := context.Background()

	img, err := repo.Upload(ctx, "u1", []byte("\xff\xd8\xff not a real jpeg"), "image/jpeg")
	require.NoError(t, err, "thumbnail failure never fails the upload")

	_, err = os.Stat(filepath.Join(root, "thumbs", "u1", img.Name+".webp"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, img.URL, repo.ThumbnailURL(ctx, *img))
}

func TestImageRepository_Delete(t *testing.T) {
	objects, root := setupObjects(t)
	repo := NewImageRepository(objects)
	ctx := context.Background()

	img, err := repo.Upload(ctx, "u1", samplePNG(t), "image/png")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "u1", img.Name))
	_, err = os.Stat(filepath.Join(root, "images", "u1", img.Name))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "thumbs", "u1", img.Name+".webp"))
	assert.True(t, os.IsNotExist(err))

	err = repo.Delete(ctx, "u1", img.Name)
	assert.True(t, models.HasCode(err, models.CodeDelete))
}

type failingObjects struct {
	objectstore.Store
}

func (failingObjects) Upload(context.Context, string, []byte, string) (objectstore.Handle, error) {
	return objectstore.Handle{}, errors.New("bucket unavailable")
}

func TestImageRepository_UploadFailure(t *testing.T) {
	repo := NewImageRepository(failingObjects{})

	img, err := repo.Upload(context.Background(), "u1", []byte("x"), "image/png")
	assert.Nil(t, img)
	assert.True(t, models.HasCode(err, models.CodeUpload))
}
