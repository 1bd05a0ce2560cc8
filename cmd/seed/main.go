// Command seed loads demo sellers and listings into the configured database.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"webcarros/internal/config"
	"webcarros/internal/database"
	"webcarros/internal/docstore"
	"webcarros/internal/identity"
	"webcarros/internal/middleware"
	"webcarros/internal/objectstore"
	"webcarros/internal/repository"
	"webcarros/internal/seed"
)

func main() {
	file := flag.String("file", "", "YAML fixtures file (defaults to the bundled demo data)")
	random := flag.Int("random", 0, "Generate this many fake sellers instead of reading fixtures")
	perSeller := flag.Int("listings", 3, "Listings per fake seller")
	fakeSeed := flag.Int64("seed", 1, "Seed for fake data")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slog.SetDefault(middleware.Logger)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	objects, err := objectstore.NewDiskStore(cfg.StorageDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatalf("Failed to open object store: %v", err)
	}

	var fx *seed.Fixtures
	switch {
	case *random > 0:
		fx = seed.Random(*fakeSeed, *random, *perSeller)
	case *file != "":
		fx, err = seed.LoadFixtures(*file)
	default:
		fx, err = seed.DefaultFixtures()
	}
	if err != nil {
		log.Fatalf("Failed to load fixtures: %v", err)
	}

	docs := docstore.NewGormStore(db)
	s := seed.NewSeeder(
		identity.NewAccounts(db),
		repository.NewProfileRepository(docs),
		repository.NewListingRepository(docs),
		repository.NewImageRepository(objects),
	)
	sum, err := s.Seed(context.Background(), fx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	slog.Info("seeding complete", "sellers", sum.Sellers, "listings", sum.Listings, "images", sum.Images)
}
