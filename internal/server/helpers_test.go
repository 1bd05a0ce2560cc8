package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"webcarros/internal/config"
	"webcarros/internal/database"
	"webcarros/internal/middleware"
	"webcarros/internal/objectstore"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	srv  *Server
	app  *fiber.App
	root string
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                  "0",
		Env:                   "test",
		JWTSecret:             "test-secret-that-is-long-enough-for-hs256",
		DBDriver:              "sqlite",
		MediaBaseURL:          "/media",
		ImageMaxUploadSizeMB:  1,
		SessionIdleMinutes:    60,
		AllowedOrigins:        "http://localhost:8080",
		ReconcileGraceMinutes: 60,
	}
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	root := t.TempDir()
	objects, err := objectstore.NewDiskStore(root, "/media")
	require.NoError(t, err)

	srv, err := NewServerWithDeps(testConfig(), db, nil, objects)
	require.NoError(t, err)
	t.Cleanup(srv.Registry().Close)

	return &testEnv{srv: srv, app: srv.NewApp(), root: root}
}

// browser is one client session cookie.
type browser struct {
	t   *testing.T
	env *testEnv
	id  string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, env: e, id: uuid.NewString()}
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	req.AddCookie(&http.Cookie{Name: middleware.ClientCookie, Value: b.id})
	resp, err := b.env.app.Test(req, 10_000)
	require.NoError(b.t, err)
	return resp
}

func (b *browser) get(path string) *http.Response {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, values url.Values) *http.Response {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// upload posts one file as the "file" multipart field.
func (b *browser) upload(filename, contentType string, content []byte) *http.Response {
	b.t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(b.t, err)
	_, err = part.Write(content)
	require.NoError(b.t, err)
	require.NoError(b.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/dashboard/new/images", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return b.do(req)
}

func (b *browser) register(name, email string) {
	b.t.Helper()
	resp := b.postForm("/register", url.Values{"name": {name}, "email": {email}, "password": {"senha1234"}})
	require.Equal(b.t, fiber.StatusFound, resp.StatusCode, readBody(b.t, resp))
	require.Equal(b.t, "/dashboard", resp.Header.Get("Location"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := 0; x < 16; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func listingForm() url.Values {
	return url.Values{
		"name":        {"onix"},
		"model":       {"1.0 Turbo LT"},
		"year":        {"2020/2021"},
		"km":          {"32000"},
		"price":       {"69.000"},
		"city":        {"Campo Grande"},
		"whatsapp":    {"67999999999"},
		"description": {"Único dono"},
	}
}
