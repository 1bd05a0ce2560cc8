package models

import "time"

// Listing is one car offered for sale.
type Listing struct {
	ID          string         `json:"-"`
	Name        string         `json:"name"`
	Model       string         `json:"model"`
	Year        string         `json:"year"`
	Km          string         `json:"km"`
	Price       Money          `json:"price"`
	City        string         `json:"city"`
	WhatsApp    string         `json:"whatsapp"`
	Description string         `json:"description"`
	Created     time.Time      `json:"created"`
	Owner       string         `json:"owner"`
	UID         string         `json:"uid"`
	Images      []ListingImage `json:"images"`
}

// Cover is the first image of the listing, if any.
func (l *Listing) Cover() (ListingImage, bool) {
	if len(l.Images) == 0 {
		return ListingImage{}, false
	}
	return l.Images[0], true
}

// ListingImage is an uploaded photo. Only uid, name and url are persisted.
type ListingImage struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	PreviewURL string `json:"-"`
}

// StoragePath is where the blob lives in the object store.
func (img ListingImage) StoragePath() string {
	return ImagePath(img.UID, img.Name)
}

// ImagePath is the object store path for an owner's image.
func ImagePath(ownerID, name string) string {
	return "images/" + ownerID + "/" + name
}

// ThumbnailPath is the object store path of the browse thumbnail for an image.
func ThumbnailPath(ownerID, name string) string {
	return "thumbs/" + ownerID + "/" + name + ".webp"
}
