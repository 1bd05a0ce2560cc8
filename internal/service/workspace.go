package service

import (
	"sync"
	"time"

	"webcarros/internal/models"
)

// StagedImage is an uploaded photo waiting for the listing to be submitted.
type StagedImage struct {
	models.ListingImage
	UploadedAt time.Time
}

// Draft is the in-progress listing of one client session. Images keep
// the order in which their uploads completed. Only the signed-in identity's
// images count; images staged under another uid are dropped on its next use.
type Draft struct {
	mu         sync.Mutex
	images     []StagedImage
	removing   map[string]struct{}
	submitting bool
}

// adopt drops images staged under an identity other than uid.
func (d *Draft) adopt(uid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adoptLocked(uid)
}

func (d *Draft) adoptLocked(uid string) {
	kept := d.images[:0]
	for _, img := range d.images {
		if img.UID == uid {
			kept = append(kept, img)
		}
	}
	d.images = kept
}

func (d *Draft) add(img StagedImage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = append(d.images, img)
}

func (d *Draft) find(name string) (StagedImage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(name)
}

func (d *Draft) findLocked(name string) (StagedImage, bool) {
	for _, img := range d.images {
		if img.Name == name {
			return img, true
		}
	}
	return StagedImage{}, false
}

func (d *Draft) remove(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(name)
}

func (d *Draft) removeLocked(name string) bool {
	for i, img := range d.images {
		if img.Name == name {
			d.images = append(d.images[:i], d.images[i+1:]...)
			return true
		}
	}
	return false
}

// reserve marks name as being deleted so a submit does not pick it up.
// busy is true while a submit is in flight or name is already being deleted.
func (d *Draft) reserve(name string) (img StagedImage, found, busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, found = d.findLocked(name)
	if !found {
		return img, false, false
	}
	if _, ok := d.removing[name]; ok || d.submitting {
		return img, true, true
	}
	if d.removing == nil {
		d.removing = make(map[string]struct{})
	}
	d.removing[name] = struct{}{}
	return img, true, false
}

// release ends a reservation, dropping the image when it was deleted.
func (d *Draft) release(name string, deleted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.removing, name)
	if deleted {
		d.removeLocked(name)
	}
}

// beginSubmit snapshots the images uid may submit. ok is false while another
// submit is in flight.
func (d *Draft) beginSubmit(uid string) (images []StagedImage, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return nil, false
	}
	d.adoptLocked(uid)
	for _, img := range d.images {
		if _, busy := d.removing[img.Name]; !busy {
			images = append(images, img)
		}
	}
	d.submitting = true
	return images, true
}

// endSubmit drops the submitted images when the listing was stored.
// Uploads that completed meanwhile stay staged.
func (d *Draft) endSubmit(submitted []StagedImage, stored bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false
	if !stored {
		return
	}
	for _, img := range submitted {
		d.removeLocked(img.Name)
	}
}

// Images returns a copy of the staged images.
func (d *Draft) Images() []StagedImage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]StagedImage(nil), d.images...)
}

// ImagesFor returns the staged images uid owns.
func (d *Draft) ImagesFor(uid string) []StagedImage {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []StagedImage
	for _, img := range d.images {
		if img.UID == uid {
			out = append(out, img)
		}
	}
	return out
}

func (d *Draft) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images)
}

func (d *Draft) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = nil
}

// LoadTracker is the set of listing ids whose card image finished loading.
type LoadTracker struct {
	mu     sync.Mutex
	loaded map[string]struct{}
}

func (t *LoadTracker) MarkLoaded(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded == nil {
		t.loaded = make(map[string]struct{})
	}
	t.loaded[id] = struct{}{}
}

func (t *LoadTracker) Loaded(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.loaded[id]
	return ok
}

// Forget drops id, used when its card goes away.
func (t *LoadTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.loaded, id)
}

// Workspaces holds drafts and load trackers per client session.
type Workspaces struct {
	mu       sync.Mutex
	drafts   map[string]*Draft
	trackers map[string]*LoadTracker
}

func NewWorkspaces() *Workspaces {
	return &Workspaces{
		drafts:   make(map[string]*Draft),
		trackers: make(map[string]*LoadTracker),
	}
}

// Draft returns the client's draft, creating an empty one.
func (w *Workspaces) Draft(clientID string) *Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.drafts[clientID]
	if !ok {
		d = &Draft{}
		w.drafts[clientID] = d
	}
	return d
}

// Loads returns the client's load tracker, creating an empty one.
func (w *Workspaces) Loads(clientID string) *LoadTracker {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.trackers[clientID]
	if !ok {
		t = &LoadTracker{}
		w.trackers[clientID] = t
	}
	return t
}

// Discard forgets everything kept for clientID. Staged blobs are left to the reconciler.
func (w *Workspaces) Discard(clientID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.drafts, clientID)
	delete(w.trackers, clientID)
}

// ResetDraft empties the client's draft, used when its identity signs out.
// Staged blobs are left to the reconciler.
func (w *Workspaces) ResetDraft(clientID string) {
	w.mu.Lock()
	d, ok := w.drafts[clientID]
	w.mu.Unlock()
	if ok {
		d.clear()
	}
}

// Referenced is the set of storage paths staged in any live draft.
func (w *Workspaces) Referenced() map[string]struct{} {
	w.mu.Lock()
	drafts := make([]*Draft, 0, len(w.drafts))
	for _, d := range w.drafts {
		drafts = append(drafts, d)
	}
	w.mu.Unlock()

	refs := make(map[string]struct{})
	for _, d := range drafts {
		for _, img := range d.Images() {
			refs[img.StoragePath()] = struct{}{}
		}
	}
	return refs
}
