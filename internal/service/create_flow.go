// Package service implements the listing flows driven by the web pages and API.
package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"webcarros/internal/config"
	"webcarros/internal/imaging"
	"webcarros/internal/models"
	"webcarros/internal/notify"
	"webcarros/internal/observability"
	"webcarros/internal/repository"

	"github.com/microcosm-cc/bluemonday"
)

const DefaultMaxUploadBytes = 10 << 20

const (
	msgInvalidImageType = "Envie uma imagem jpeg ou png"
	msgImageUploaded    = "Imagem enviada com sucesso!"
	msgImageUploadError = "Erro ao enviar imagem"
	msgImageDeleteError = "Erro ao deletar imagem"
	msgDraftBusy        = "Aguarde o cadastro do carro terminar"
	msgNeedOneImage     = "Envie pelo menos 1 imagem"
	msgListingCreated   = "Carro cadastrado com sucesso!"
	msgListingError     = "Erro ao cadastrar carro!"
)

var whatsappPattern = regexp.MustCompile(`^\d{11,12}$`)

// ListingForm is the create form as posted by the browser.
type ListingForm struct {
	Name        string `form:"name" json:"name"`
	Model       string `form:"model" json:"model"`
	Year        string `form:"year" json:"year"`
	Km          string `form:"km" json:"km"`
	Price       string `form:"price" json:"price"`
	City        string `form:"city" json:"city"`
	WhatsApp    string `form:"whatsapp" json:"whatsapp"`
	Description string `form:"description" json:"description"`
}

// FileInput is one selected file.
type FileInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// CreateFlow stages images and submits new listings.
type CreateFlow struct {
	listings       repository.ListingRepository
	images         repository.ImageRepository
	maxUploadBytes int64
	policy         *bluemonday.Policy
	now            func() time.Time
}

func NewCreateFlow(listings repository.ListingRepository, images repository.ImageRepository, cfg *config.Config) *CreateFlow {
	maxUpload := int64(DefaultMaxUploadBytes)
	if cfg != nil && cfg.ImageMaxUploadSizeMB > 0 {
		maxUpload = cfg.MaxUploadBytes()
	}
	return &CreateFlow{
		listings:       listings,
		images:         images,
		maxUploadBytes: maxUpload,
		policy:         bluemonday.StrictPolicy(),
		now:            time.Now,
	}
}

// HandleFile validates and uploads one file, appending it to the draft on success.
func (f *CreateFlow) HandleFile(ctx context.Context, who *models.Identity, draft *Draft, toasts notify.Notifier, in FileInput) (*StagedImage, error) {
	if who == nil {
		return nil, models.NewUnauthorizedError("Faça login para enviar imagens")
	}
	contentType, ok := imaging.Accept(in.ContentType, in.Content)
	if !ok {
		toasts.Error(msgInvalidImageType)
		return nil, models.NewValidationError(msgInvalidImageType)
	}
	if int64(len(in.Content)) > f.maxUploadBytes {
		msg := fmt.Sprintf("Imagem muito grande (máximo %dMB)", f.maxUploadBytes>>20)
		toasts.Error(msg)
		return nil, models.NewValidationError(msg)
	}

	img, err := f.images.Upload(ctx, who.ID, in.Content, contentType)
	if err != nil {
		slog.ErrorContext(ctx, "image upload failed", "user_id", who.ID, "filename", in.Filename, "err", err)
		toasts.Error(msgImageUploadError)
		return nil, err
	}

	staged := StagedImage{ListingImage: *img, UploadedAt: f.now()}
	draft.add(staged)
	toasts.Success(msgImageUploaded)
	return &staged, nil
}

// RemoveImage deletes a staged image remotely and drops it from the draft only
// when the delete succeeded. It refuses while the draft is being submitted.
func (f *CreateFlow) RemoveImage(ctx context.Context, who *models.Identity, draft *Draft, toasts notify.Notifier, name string) error {
	if who == nil {
		return models.NewUnauthorizedError("Faça login para remover imagens")
	}
	draft.adopt(who.ID)
	img, found, busy := draft.reserve(name)
	if !found || img.UID != who.ID {
		return models.NewNotFoundError("Image", name)
	}
	if busy {
		toasts.Error(msgDraftBusy)
		return models.NewValidationError(msgDraftBusy)
	}
	err := f.images.Delete(ctx, img.UID, img.Name)
	draft.release(name, err == nil)
	if err != nil {
		slog.WarnContext(ctx, "staged image delete failed", "user_id", who.ID, "image", name, "err", err)
		toasts.Error(msgImageDeleteError)
		return err
	}
	return nil
}

// Submit validates the form and stores the listing built from the draft.
// The draft survives a failed write so the user can retry without re-uploading.
func (f *CreateFlow) Submit(ctx context.Context, who *models.Identity, draft *Draft, toasts notify.Notifier, form ListingForm) (string, error) {
	if who == nil {
		return "", models.NewUnauthorizedError("Faça login para cadastrar um carro")
	}
	clean, price, err := f.ValidateForm(form)
	if err != nil {
		return "", err
	}
	staged, ok := draft.beginSubmit(who.ID)
	if !ok {
		toasts.Error(msgDraftBusy)
		return "", models.NewValidationError(msgDraftBusy)
	}
	if len(staged) == 0 {
		draft.endSubmit(nil, false)
		toasts.Error(msgNeedOneImage)
		return "", models.NewValidationError(msgNeedOneImage)
	}

	images := make([]models.ListingImage, 0, len(staged))
	for _, img := range staged {
		images = append(images, models.ListingImage{UID: img.UID, Name: img.Name, URL: img.URL})
	}
	listing := &models.Listing{
		Name:        strings.ToUpper(clean.Name),
		Model:       clean.Model,
		Year:        clean.Year,
		Km:          clean.Km,
		Price:       price,
		City:        clean.City,
		WhatsApp:    clean.WhatsApp,
		Description: clean.Description,
		Created:     f.now().UTC(),
		Owner:       who.Name,
		UID:         who.ID,
		Images:      images,
	}

	id, err := f.listings.Create(ctx, listing)
	draft.endSubmit(staged, err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "listing create failed", "user_id", who.ID, "err", err)
		toasts.Error(msgListingError)
		return "", err
	}

	observability.ListingsCreated.Inc()
	slog.InfoContext(ctx, "listing created", "user_id", who.ID, "listing_id", id, "images", len(images))
	toasts.Success(msgListingCreated)
	return id, nil
}

// ValidateForm trims and sanitizes the form and parses the price. Every field
// problem is reported at once in the error's Fields.
func (f *CreateFlow) ValidateForm(form ListingForm) (ListingForm, models.Money, error) {
	clean := ListingForm{
		Name:        f.text(form.Name),
		Model:       f.text(form.Model),
		Year:        f.text(form.Year),
		Km:          f.text(form.Km),
		Price:       strings.TrimSpace(form.Price),
		City:        f.text(form.City),
		WhatsApp:    strings.TrimSpace(form.WhatsApp),
		Description: f.text(form.Description),
	}

	fields := make(map[string]string)
	required := []struct {
		key, value, msg string
	}{
		{"name", clean.Name, "O campo nome é obrigatório"},
		{"model", clean.Model, "O modelo é obrigatório"},
		{"year", clean.Year, "O ano do carro é obrigatório"},
		{"km", clean.Km, "O km do carro é obrigatório"},
		{"price", clean.Price, "O preço é obrigatório"},
		{"city", clean.City, "A cidade é obrigatória"},
		{"whatsapp", clean.WhatsApp, "O telefone é obrigatório"},
		{"description", clean.Description, "A descrição é obrigatória"},
	}
	for _, r := range required {
		if r.value == "" {
			fields[r.key] = r.msg
		}
	}

	if _, missing := fields["whatsapp"]; !missing && !whatsappPattern.MatchString(clean.WhatsApp) {
		fields["whatsapp"] = "Número de telefone inválido."
	}

	var price models.Money
	if _, missing := fields["price"]; !missing {
		parsed, err := models.ParseMoney(clean.Price)
		if err != nil || parsed <= 0 {
			fields["price"] = "Informe um preço válido"
		}
		price = parsed
	}

	if len(fields) > 0 {
		return clean, 0, models.NewFieldErrors(fields)
	}
	return clean, price, nil
}

// text strips markup and surrounding space from free text.
func (f *CreateFlow) text(s string) string {
	return strings.TrimSpace(html.UnescapeString(f.policy.Sanitize(s)))
}
