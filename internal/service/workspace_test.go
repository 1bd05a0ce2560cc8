package service

import (
	"sync"
	"testing"

	"webcarros/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDraft_ConcurrentAdds(t *testing.T) {
	t.Parallel()
	d := &Draft{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.add(StagedImage{ListingImage: models.ListingImage{UID: "u1", Name: string(rune('A' + i))}})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, d.Len())

	assert.True(t, d.remove("A"))
	assert.False(t, d.remove("A"))
	assert.Equal(t, 49, d.Len())
}

func TestWorkspaces(t *testing.T) {
	t.Parallel()
	w := NewWorkspaces()
	assert.Same(t, w.Draft("c1"), w.Draft("c1"))
	assert.Same(t, w.Loads("c1"), w.Loads("c1"))

	w.Draft("c1").add(StagedImage{ListingImage: models.ListingImage{UID: "u1", Name: "a"}})
	w.Draft("c2").add(StagedImage{ListingImage: models.ListingImage{UID: "u2", Name: "b"}})
	refs := w.Referenced()
	assert.Contains(t, refs, "images/u1/a")
	assert.Contains(t, refs, "images/u2/b")

	w.Loads("c1").MarkLoaded("car-1")
	w.Discard("c1")
	assert.Zero(t, w.Draft("c1").Len())
	assert.False(t, w.Loads("c1").Loaded("car-1"))
	assert.NotContains(t, w.Referenced(), "images/u1/a")
}

func TestWorkspaces_ResetDraftKeepsLoads(t *testing.T) {
	t.Parallel()
	w := NewWorkspaces()
	w.Draft("c1").add(StagedImage{ListingImage: models.ListingImage{UID: "u1", Name: "a"}})
	w.Loads("c1").MarkLoaded("car-1")

	w.ResetDraft("c1")
	w.ResetDraft("unknown")

	assert.Zero(t, w.Draft("c1").Len())
	assert.True(t, w.Loads("c1").Loaded("car-1"))
}

func TestDraft_ImagesForFiltersByOwner(t *testing.T) {
	t.Parallel()
	d := &Draft{}
	d.add(StagedImage{ListingImage: models.ListingImage{UID: "u1", Name: "a"}})
	d.add(StagedImage{ListingImage: models.ListingImage{UID: "u2", Name: "b"}})

	got := d.ImagesFor("u2")
	assert.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)

	d.adopt("u2")
	assert.Equal(t, 1, d.Len())
}
