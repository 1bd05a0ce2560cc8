// Package seed loads demo sellers and listings into a WebCarros database.
// It is intended for development only.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"webcarros/internal/identity"
	"webcarros/internal/models"
	"webcarros/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yml
var defaultFixtures []byte

// Fixtures is the seed file layout.
type Fixtures struct {
	Sellers []SellerFixture `yaml:"sellers"`
}

// SellerFixture is one account with its listings.
type SellerFixture struct {
	Name     string           `yaml:"name"`
	Email    string           `yaml:"email"`
	Password string           `yaml:"password"`
	Listings []ListingFixture `yaml:"listings"`
}

// ListingFixture is one car. Images is how many placeholder photos to generate.
type ListingFixture struct {
	Name        string `yaml:"name"`
	Model       string `yaml:"model"`
	Year        string `yaml:"year"`
	Km          string `yaml:"km"`
	Price       string `yaml:"price"`
	City        string `yaml:"city"`
	WhatsApp    string `yaml:"whatsapp"`
	Description string `yaml:"description"`
	Images      int    `yaml:"images"`
}

// Summary counts what a run wrote.
type Summary struct {
	Sellers  int
	Listings int
	Images   int
}

// DefaultFixtures returns the bundled demo data.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(defaultFixtures)
}

// LoadFixtures reads a fixtures file from disk.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixtures YAML.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	for i, s := range fx.Sellers {
		if s.Email == "" || s.Name == "" {
			return nil, fmt.Errorf("seller %d: name and email are required", i)
		}
	}
	return &fx, nil
}

// Random builds fake sellers using gofakeit. The same seed gives the same data.
func Random(seed int64, sellers, perSeller int) *Fixtures {
	faker := gofakeit.New(seed)
	fx := &Fixtures{}
	for i := 0; i < sellers; i++ {
		s := SellerFixture{
			Name:     faker.FirstName() + " " + faker.LastName(),
			Email:    fmt.Sprintf("seller%d.%s@webcarros.dev", i, strings.ToLower(faker.Username())),
			Password: faker.Password(true, true, true, false, false, 12),
		}
		for j := 0; j < perSeller; j++ {
			year := faker.Number(2005, 2024)
			s.Listings = append(s.Listings, ListingFixture{
				Name:        faker.CarMaker(),
				Model:       faker.CarModel(),
				Year:        fmt.Sprintf("%d/%d", year, year+1),
				Km:          fmt.Sprint(faker.Number(0, 250) * 1000),
				Price:       fmt.Sprint(faker.Number(15, 400) * 1000),
				City:        faker.City(),
				WhatsApp:    faker.Numerify("679########"),
				Description: faker.Sentence(12),
				Images:      faker.Number(1, 4),
			})
		}
		fx.Sellers = append(fx.Sellers, s)
	}
	return fx
}

// Seeder writes fixtures through the same stores the server uses.
type Seeder struct {
	accounts *identity.Accounts
	profiles repository.ProfileRepository
	listings repository.ListingRepository
	images   repository.ImageRepository
	now      func() time.Time
}

// NewSeeder creates a Seeder.
func NewSeeder(accounts *identity.Accounts, profiles repository.ProfileRepository, listings repository.ListingRepository, images repository.ImageRepository) *Seeder {
	return &Seeder{accounts: accounts, profiles: profiles, listings: listings, images: images, now: time.Now}
}

// Seed creates every seller and listing. Sellers whose email already exists
// are reused, so a second run only adds listings.
func (s *Seeder) Seed(ctx context.Context, fx *Fixtures) (Summary, error) {
	var sum Summary
	created := s.now().UTC()

	for _, seller := range fx.Sellers {
		account, err := s.account(ctx, seller)
		if err != nil {
			return sum, fmt.Errorf("seller %s: %w", seller.Email, err)
		}
		if err := s.profiles.PutProfile(ctx, &models.Profile{UID: account.ID, Name: seller.Name}); err != nil {
			return sum, fmt.Errorf("seller %s: %w", seller.Email, err)
		}
		sum.Sellers++

		for _, lf := range seller.Listings {
			price, err := models.ParseMoney(lf.Price)
			if err != nil {
				return sum, fmt.Errorf("listing %s: %w", lf.Name, err)
			}
			listing := &models.Listing{
				Name:        strings.ToUpper(lf.Name),
				Model:       lf.Model,
				Year:        lf.Year,
				Km:          lf.Km,
				Price:       price,
				City:        lf.City,
				WhatsApp:    lf.WhatsApp,
				Description: lf.Description,
				Owner:       seller.Name,
				UID:         account.ID,
				Images:      []models.ListingImage{},
			}
			for i := 0; i < lf.Images; i++ {
				img, err := s.images.Upload(ctx, account.ID, placeholder(i), "image/png")
				if err != nil {
					return sum, fmt.Errorf("listing %s: %w", lf.Name, err)
				}
				listing.Images = append(listing.Images, models.ListingImage{UID: img.UID, Name: img.Name, URL: img.URL})
				sum.Images++
			}
			// Spread creation times so browse order is stable.
			listing.Created = created.Add(-time.Duration(sum.Listings) * time.Minute)
			if _, err := s.listings.Create(ctx, listing); err != nil {
				return sum, fmt.Errorf("listing %s: %w", lf.Name, err)
			}
			sum.Listings++
		}
		slog.InfoContext(ctx, "seeded seller", "email", seller.Email, "listings", len(seller.Listings))
	}
	return sum, nil
}

func (s *Seeder) account(ctx context.Context, seller SellerFixture) (*identity.Account, error) {
	account, err := s.accounts.Create(ctx, seller.Email, seller.Password)
	if errors.Is(err, identity.ErrEmailInUse) {
		return s.accounts.FindByEmail(ctx, seller.Email)
	}
	return account, err
}

var swatches = []color.RGBA{
	{R: 0xe1, G: 0x1b, B: 0x3d, A: 0xff},
	{R: 0x1f, G: 0x4e, B: 0x8c, A: 0xff},
	{R: 0x2d, G: 0x2d, B: 0x2d, A: 0xff},
	{R: 0xd9, G: 0xd9, B: 0xd9, A: 0xff},
}

// placeholder renders a flat 640x480 PNG.
func placeholder(i int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	c := swatches[i%len(swatches)]
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
