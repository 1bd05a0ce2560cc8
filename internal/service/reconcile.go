package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"webcarros/internal/objectstore"
	"webcarros/internal/observability"
	"webcarros/internal/repository"
)

// Reconciler reclaims uploaded images that no listing or live draft references.
type Reconciler struct {
	objects    objectstore.Store
	listings   repository.ListingRepository
	images     repository.ImageRepository
	workspaces *Workspaces
	grace      time.Duration
	now        func() time.Time
}

func NewReconciler(objects objectstore.Store, listings repository.ListingRepository, images repository.ImageRepository, workspaces *Workspaces, grace time.Duration) *Reconciler {
	return &Reconciler{
		objects:    objects,
		listings:   listings,
		images:     images,
		workspaces: workspaces,
		grace:      grace,
		now:        time.Now,
	}
}

// Run makes one pass and returns how many blobs were reclaimed. Blobs younger
// than the grace period are kept: their upload may not be staged yet.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, "Reconciler", "Run")

	// Drafts first: a submit moves images from its draft into a listing, so
	// reading listings afterwards still sees them in one of the two sets.
	keep := r.workspaces.Referenced()
	all, err := r.listings.List(ctx)
	if err != nil {
		observability.EndSpan(span, err)
		return 0, err
	}
	for _, l := range all {
		for _, img := range l.Images {
			keep[img.StoragePath()] = struct{}{}
		}
	}

	cutoff := r.now().Add(-r.grace)
	var orphans []objectstore.Object
	err = r.objects.Walk(ctx, "images", func(obj objectstore.Object) error {
		if _, ok := keep[obj.Path]; ok || obj.ModTime.After(cutoff) {
			return nil
		}
		orphans = append(orphans, obj)
		return nil
	})
	if err != nil {
		observability.EndSpan(span, err)
		return 0, err
	}

	reclaimed := 0
	for _, obj := range orphans {
		owner, name, ok := splitImagePath(obj.Path)
		if !ok {
			continue
		}
		if err := r.images.Delete(ctx, owner, name); err != nil {
			slog.WarnContext(ctx, "orphan image delete failed", "path", obj.Path, "err", err)
			continue
		}
		reclaimed++
	}
	observability.OrphanImagesReclaimed.Add(float64(reclaimed))
	if reclaimed > 0 {
		slog.InfoContext(ctx, "reclaimed orphan images", "count", reclaimed)
	}
	observability.EndSpan(span, nil)
	return reclaimed, nil
}

// Start runs a pass every interval until ctx ends.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
					slog.ErrorContext(ctx, "orphan reconciliation failed", "err", err)
				}
			}
		}
	}()
}

// splitImagePath parses "images/{owner}/{name}".
func splitImagePath(p string) (owner, name string, ok bool) {
	parts := strings.Split(p, "/")
	if len(parts) != 3 || parts[0] != "images" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
