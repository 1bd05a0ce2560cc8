package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"webcarros/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecks(t *testing.T) {
	env := setupServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = env.app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])
}

func TestHomePageRendersEmptyState(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)

	resp := b.get("/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	html := readBody(t, resp)
	assert.Contains(t, html, "Nenhum carro encontrado.")
	assert.Contains(t, html, "Entrar")
	assert.NotContains(t, html, "<no value>")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestClientCookieIssued(t *testing.T) {
	env := setupServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "wc_client" {
			found = true
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)
}

func TestCarPageUnknownRedirectsHome(t *testing.T) {
	env := setupServer(t)

	resp := env.browser(t).get("/car/does-not-exist")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestDashboardRequiresIdentity(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)

	for _, path := range []string{"/dashboard", "/dashboard/new"} {
		resp := b.get(path)
		assert.Equal(t, fiber.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestRegisterThenDashboard(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.get("/dashboard")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	html := readBody(t, resp)
	assert.Contains(t, html, "<span>Ana</span>")
	assert.Contains(t, html, "Bem-vindo ao WebCarros!")
	assert.Contains(t, html, "Você ainda não cadastrou nenhum carro.")

	// Toasts are shown once.
	html = readBody(t, b.get("/dashboard"))
	assert.NotContains(t, html, "Bem-vindo ao WebCarros!")

	resp = b.get("/login")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestHeaderWithoutProfileShowsAvatarOnly(t *testing.T) {
	env := setupServer(t)
	_, err := env.srv.provider.Accounts().Create(t.Context(), "semnome@webcarros.dev", "senha1234")
	require.NoError(t, err)

	b := env.browser(t)
	resp := b.postForm("/login", url.Values{"email": {"semnome@webcarros.dev"}, "password": {"senha1234"}})
	require.Equal(t, fiber.StatusFound, resp.StatusCode)

	html := readBody(t, b.get("/"))
	assert.Contains(t, html, `<span class="avatar"></span></a>`)
	assert.NotContains(t, html, ">Entrar<")
}

func TestRegisterValidationRerenders(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)

	resp := b.postForm("/register", url.Values{"name": {""}, "email": {"ana"}, "password": {"123"}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	html := readBody(t, resp)
	assert.Contains(t, html, `value="ana"`)
	assert.NotContains(t, html, "<no value>")
}

func TestLoginWrongPassword(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")
	require.Equal(t, fiber.StatusFound, b.postForm("/logout", nil).StatusCode)

	resp := b.postForm("/login", url.Values{"email": {"ana@webcarros.dev"}, "password": {"errada123"}})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Email ou senha inválidos")

	resp = b.postForm("/login", url.Values{"email": {"ana@webcarros.dev"}, "password": {"senha1234"}})
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLogoutClearsIdentity(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.postForm("/logout", nil)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = b.get("/dashboard")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.upload("notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	var body struct {
		Images []models.ListingImage `json:"images"`
	}
	decodeJSON(t, resp, &body)
	assert.Empty(t, body.Images)

	entries, _ := os.ReadDir(filepath.Join(env.root, "images"))
	assert.Empty(t, entries)
}

func TestSubmitWithoutImages(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.postForm("/dashboard/new", listingForm())
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	html := readBody(t, resp)
	assert.Contains(t, html, "Envie pelo menos 1 imagem")
	assert.Contains(t, html, `value="Campo Grande"`)

	listings, err := env.srv.listingRepo.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestCreateBrowseAndDeleteListing(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.upload("onix.png", "image/png", samplePNG(t))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var uploaded struct {
		Images []models.ListingImage `json:"images"`
	}
	decodeJSON(t, resp, &uploaded)
	require.Len(t, uploaded.Images, 1)

	resp = b.postForm("/dashboard/new", listingForm())
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.NotContains(t, readBody(t, b.get("/dashboard/new")), uploaded.Images[0].Name)

	// Public JSON API
	apiResp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/listings?q=oni", nil))
	require.NoError(t, err)
	var listings []ListingResponse
	decodeJSON(t, apiResp, &listings)
	require.Len(t, listings, 1)
	car := listings[0]
	assert.Equal(t, "ONIX", car.Name)
	assert.Equal(t, models.Money(6900000), car.Price)
	assert.Equal(t, "R$ 69.000,00", car.PriceText)
	assert.Equal(t, "Ana Souza", car.Owner)
	require.Len(t, car.Images, 1)

	// Home page and detail page
	html := readBody(t, env.browser(t).get("/"))
	assert.Contains(t, html, "ONIX")
	assert.Contains(t, html, `data-card="`+car.ID+`"`)
	assert.NotContains(t, html, `loading="lazy"`, "hidden card images must still load")
	assert.Contains(t, html, "R$ 69.000,00")

	resp = env.browser(t).get("/car/" + car.ID)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	html = readBody(t, resp)
	assert.Contains(t, html, "api.whatsapp.com/send?phone=+5567999999999")
	assert.Contains(t, html, `class="track" style="--per-view:2"`)
	assert.Contains(t, html, `class="slide"`)

	html = readBody(t, env.browser(t).get("/car/"+car.ID+"?vw=375"))
	assert.Contains(t, html, `class="track" style="--per-view:1"`)
	assert.Contains(t, html, "Campo Grande")

	// Media is served from the object store
	mediaResp, err := env.app.Test(httptest.NewRequest(http.MethodGet, car.Images[0].URL, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, mediaResp.StatusCode)
	assert.Equal(t, "image/png", mediaResp.Header.Get("Content-Type"))

	// Another owner cannot delete it
	other := env.browser(t)
	other.register("Bruno Lima", "bruno@webcarros.dev")
	other.postForm("/dashboard/cars/"+car.ID+"/delete", nil)
	_, err = env.srv.listingRepo.GetByID(t.Context(), car.ID)
	require.NoError(t, err)

	resp = b.postForm("/dashboard/cars/"+car.ID+"/delete", nil)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	assert.Contains(t, readBody(t, b.get("/dashboard")), "Carro deletado com sucesso!")

	_, err = env.srv.listingRepo.GetByID(t.Context(), car.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = os.Stat(filepath.Join(env.root, filepath.FromSlash(car.Images[0].StoragePath())))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveStagedImage(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.upload("onix.png", "image/png", samplePNG(t))
	var uploaded struct {
		Images []models.ListingImage `json:"images"`
	}
	decodeJSON(t, resp, &uploaded)
	require.Len(t, uploaded.Images, 1)
	name := uploaded.Images[0].Name

	resp = b.postForm("/dashboard/new/images/"+name+"/delete", nil)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.NotContains(t, readBody(t, b.get("/dashboard/new")), name)
	assert.Equal(t, 0, env.srv.workspaces.Draft(b.id).Len())
}

func TestStagedImagesDoNotSurviveSignOut(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")

	resp := b.upload("onix.png", "image/png", samplePNG(t))
	var uploaded struct {
		Images []models.ListingImage `json:"images"`
	}
	decodeJSON(t, resp, &uploaded)
	require.Len(t, uploaded.Images, 1)

	resp = b.postForm("/logout", nil)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	b.register("Bruno Lima", "bruno@webcarros.dev")

	assert.NotContains(t, readBody(t, b.get("/dashboard/new")), uploaded.Images[0].Name)

	resp = b.postForm("/dashboard/new", listingForm())
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Envie pelo menos 1 imagem")

	listings, err := env.srv.listingRepo.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestRateLimitedRequestsStartNoClientSession(t *testing.T) {
	env := setupServer(t)
	env.srv.globalLimit = 2
	env.app = env.srv.NewApp()

	statuses := map[int]int{}
	for i := 0; i < 5; i++ {
		statuses[env.browser(t).get("/").StatusCode]++
	}

	assert.Equal(t, 2, statuses[fiber.StatusOK])
	assert.Equal(t, 3, statuses[fiber.StatusTooManyRequests])
	assert.Equal(t, 2, env.srv.Registry().Len())
}

func TestGetListingNotFound(t *testing.T) {
	env := setupServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/listings/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	var body models.ErrorResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, models.CodeNotFound, body.Code)
}

func TestMyListingsBearerAuth(t *testing.T) {
	env := setupServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/me/listings", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	b := env.browser(t)
	b.register("Ana Souza", "ana@webcarros.dev")
	st := env.srv.Registry().Get(b.id).Store.State()
	require.NotNil(t, st.Identity)
	require.NotEmpty(t, st.Identity.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/me/listings", nil)
	req.Header.Set("Authorization", "Bearer "+st.Identity.Token)
	resp, err = env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listings []ListingResponse
	decodeJSON(t, resp, &listings)
	assert.Empty(t, listings)
}

func TestSessionEndpoint(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)

	var anon map[string]any
	decodeJSON(t, b.get("/api/session"), &anon)
	assert.Equal(t, false, anon["loading"])
	assert.Nil(t, anon["identity"])

	b.register("Ana Souza", "ana@webcarros.dev")
	var signed struct {
		Identity struct {
			FirstName string `json:"first_name"`
		} `json:"identity"`
	}
	decodeJSON(t, b.get("/api/session"), &signed)
	assert.Equal(t, "Ana", signed.Identity.FirstName)
}

func TestMarkCardLoaded(t *testing.T) {
	env := setupServer(t)
	b := env.browser(t)

	resp := b.do(httptest.NewRequest(http.MethodPost, "/api/cards/abc/loaded", nil))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.True(t, env.srv.workspaces.Loads(b.id).Loaded("abc"))
	assert.False(t, env.srv.workspaces.Loads(env.browser(t).id).Loaded("abc"))
}

func TestServeMediaMissing(t *testing.T) {
	env := setupServer(t)

	for _, path := range []string{"/media/images/u1/nope", "/media/../../etc/passwd"} {
		resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
	}
}

func TestSwaggerDoc(t *testing.T) {
	env := setupServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/swagger/doc.json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/listings/{id}")
}
