package server

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"

	"webcarros/internal/middleware"
	"webcarros/internal/models"
	"webcarros/internal/service"

	"github.com/gofiber/fiber/v2"
)

// maxFilesPerUpload bounds one multipart upload request.
const maxFilesPerUpload = 8

// HomePage handles GET /
func (s *Server) HomePage(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	query := c.Query("q")

	cards, err := s.browseService.Browse(c.UserContext(), s.workspaces.Loads(client.ID), query)
	if err != nil {
		slog.ErrorContext(c.UserContext(), "browse failed", "err", err)
		client.Toasts.Error("Erro ao carregar os carros")
		cards = nil
	}
	return s.render(c, "home", "", fiber.Map{"cards": cards, "query": query})
}

// CarPage handles GET /car/:id. Unknown listings go back to the home page.
func (s *Server) CarPage(c *fiber.Ctx) error {
	c.Set("Accept-CH", "Viewport-Width, Sec-CH-Viewport-Width")
	width := service.ParseViewportWidth(c.Get("Sec-CH-Viewport-Width"), c.Get("Viewport-Width"), c.Query("vw"))

	detail, err := s.detailService.Get(c.UserContext(), c.Params("id"), width)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.ErrorContext(c.UserContext(), "listing fetch failed", "listing_id", c.Params("id"), "err", err)
		}
		return c.Redirect("/")
	}
	return s.render(c, "car", detail.Listing.Name, fiber.Map{"detail": detail})
}

// LoginPage handles GET /login
func (s *Server) LoginPage(c *fiber.Ctx) error {
	if sessionState(c).Signed() {
		return c.Redirect("/dashboard")
	}
	return s.render(c, "login", "Entrar", fiber.Map{"email": "", "fields": map[string]string{}})
}

// Login handles POST /login
func (s *Server) Login(c *fiber.Ctx) error {
	var in service.SignInInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	client := middleware.CurrentClient(c)
	if _, err := s.accountFlow.SignIn(c.UserContext(), client, in); err != nil {
		c.Status(models.StatusFor(err))
		return s.render(c, "login", "Entrar", fiber.Map{"email": in.Email, "fields": fieldErrors(err)})
	}
	return c.Redirect("/dashboard")
}

// RegisterPage handles GET /register
func (s *Server) RegisterPage(c *fiber.Ctx) error {
	if sessionState(c).Signed() {
		return c.Redirect("/dashboard")
	}
	return s.render(c, "register", "Cadastro", fiber.Map{"name": "", "email": "", "fields": map[string]string{}})
}

// Register handles POST /register
func (s *Server) Register(c *fiber.Ctx) error {
	var in service.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	client := middleware.CurrentClient(c)
	if _, err := s.accountFlow.Register(c.UserContext(), client, in); err != nil {
		c.Status(models.StatusFor(err))
		return s.render(c, "register", "Cadastro", fiber.Map{"name": in.Name, "email": in.Email, "fields": fieldErrors(err)})
	}
	return c.Redirect("/dashboard")
}

// Logout handles POST /logout
func (s *Server) Logout(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	// A provider failure is already toasted; the identity is cleared either way.
	_ = s.accountFlow.SignOut(c.UserContext(), client)
	s.workspaces.ResetDraft(client.ID)
	return c.Redirect("/login")
}

// DashboardPage handles GET /dashboard
func (s *Server) DashboardPage(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)

	cards, err := s.ownerFlow.List(c.UserContext(), who.ID, s.workspaces.Loads(client.ID))
	if err != nil {
		slog.ErrorContext(c.UserContext(), "owner listings failed", "err", err)
		client.Toasts.Error("Erro ao carregar seus carros")
		cards = nil
	}
	return s.render(c, "dashboard", "Painel", fiber.Map{"cards": cards})
}

// NewListingPage handles GET /dashboard/new
func (s *Server) NewListingPage(c *fiber.Ctx) error {
	return s.renderNewListing(c, service.ListingForm{}, nil)
}

func (s *Server) renderNewListing(c *fiber.Ctx, form service.ListingForm, fields map[string]string) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)
	if fields == nil {
		fields = map[string]string{}
	}
	return s.render(c, "new", "Novo carro", fiber.Map{
		"form":        form,
		"fields":      fields,
		"images":      s.workspaces.Draft(client.ID).ImagesFor(who.ID),
		"maxUploadMB": s.config.ImageMaxUploadSizeMB,
	})
}

// UploadImages handles POST /dashboard/new/images. Each file is handled on its own.
func (s *Server) UploadImages(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)
	draft := s.workspaces.Draft(client.ID)

	form, err := c.MultipartForm()
	if err != nil {
		client.Toasts.Error("Envie uma imagem jpeg ou png")
		return s.afterUpload(c, fiber.StatusBadRequest, nil)
	}
	files := form.File["file"]
	if len(files) > maxFilesPerUpload {
		files = files[:maxFilesPerUpload]
	}

	status := fiber.StatusOK
	var staged []service.StagedImage
	for _, fh := range files {
		in, err := readFile(fh)
		if err != nil {
			slog.WarnContext(c.UserContext(), "unreadable upload", "filename", fh.Filename, "err", err)
			client.Toasts.Error("Erro ao enviar imagem")
			status = fiber.StatusBadRequest
			continue
		}
		img, err := s.createFlow.HandleFile(c.UserContext(), who, draft, client.Toasts, in)
		if err != nil {
			status = models.StatusFor(err)
			continue
		}
		staged = append(staged, *img)
	}
	return s.afterUpload(c, status, staged)
}

// afterUpload answers fetch callers with JSON and browsers with a redirect.
func (s *Server) afterUpload(c *fiber.Ctx, status int, staged []service.StagedImage) error {
	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		images := make([]models.ListingImage, 0, len(staged))
		for _, img := range staged {
			images = append(images, img.ListingImage)
		}
		return c.Status(status).JSON(fiber.Map{"images": images})
	}
	return c.Redirect("/dashboard/new")
}

func readFile(fh *multipart.FileHeader) (service.FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return service.FileInput{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return service.FileInput{}, err
	}
	return service.FileInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}

// RemoveStagedImage handles POST /dashboard/new/images/:name/delete
func (s *Server) RemoveStagedImage(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)
	// Failures are toasted by the flow; the page shows the image still staged.
	_ = s.createFlow.RemoveImage(c.UserContext(), who, s.workspaces.Draft(client.ID), client.Toasts, c.Params("name"))
	return c.Redirect("/dashboard/new")
}

// SubmitListing handles POST /dashboard/new
func (s *Server) SubmitListing(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)

	var form service.ListingForm
	if err := c.BodyParser(&form); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	if _, err := s.createFlow.Submit(c.UserContext(), who, s.workspaces.Draft(client.ID), client.Toasts, form); err != nil {
		c.Status(models.StatusFor(err))
		return s.renderNewListing(c, form, fieldErrors(err))
	}
	return c.Redirect("/dashboard/new")
}

// DeleteListing handles POST /dashboard/cars/:id/delete
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	client := middleware.CurrentClient(c)
	who := middleware.CurrentIdentity(c)

	res, err := s.ownerFlow.Delete(c.UserContext(), who, c.Params("id"), client.Toasts)
	if err != nil {
		if !models.HasCode(err, models.CodeDelete) {
			client.Toasts.Error(userMessage(err))
		}
	} else if res.Removed {
		s.workspaces.Loads(client.ID).Forget(res.ListingID)
	}
	return c.Redirect("/dashboard")
}

// fieldErrors extracts inline field messages from a validation error.
func fieldErrors(err error) map[string]string {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Fields != nil {
		return appErr.Fields
	}
	return map[string]string{}
}

func userMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case models.CodeNotFound:
			return "Carro não encontrado"
		case models.CodeInternal:
			return "Erro inesperado, tente novamente"
		}
		return appErr.Message
	}
	return "Erro inesperado, tente novamente"
}
