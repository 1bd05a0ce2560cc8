package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"webcarros/internal/middleware"
	"webcarros/internal/models"
	"webcarros/internal/notify"
	"webcarros/internal/session"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageNames = []string{"home", "car", "login", "register", "dashboard", "new"}

// views holds one parsed template set per page, each sharing the layout.
type views struct {
	pages map[string]*template.Template
}

var viewFuncs = template.FuncMap{
	"money": func(m models.Money) string { return m.String() },
	"plainMoney": func(m models.Money) string { return m.Plain() },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("02/01/2006")
	},
	"field": func(fields any, key string) string {
		m, _ := fields.(map[string]string)
		return m[key]
	},
}

func loadViews() (*views, error) {
	base, err := template.New("layout").Funcs(viewFuncs).ParseFS(templatesFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, err
	}
	v := &views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		t, err := clone.ParseFS(templatesFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// page is what every template receives.
type page struct {
	Title    string
	Identity *models.Identity
	Loading  bool
	Toasts   []notify.Toast
	Data     fiber.Map
}

// render drains the client's pending toasts into the page and writes it.
func (s *Server) render(c *fiber.Ctx, name, title string, data fiber.Map) error {
	t, ok := s.views.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	p := page{Title: title, Data: data, Loading: true}
	if client := middleware.CurrentClient(c); client != nil {
		st := sessionState(c)
		p.Identity = st.Identity
		p.Loading = st.Loading
		p.Toasts = client.Toasts.Drain()
	}
	if p.Data == nil {
		p.Data = fiber.Map{}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Type("html", "utf-8").Send(buf.Bytes())
}

// sessionState is the current client's state, awaiting the initial auth
// check for at most guardWait so headers do not flicker.
func sessionState(c *fiber.Ctx) session.State {
	client := middleware.CurrentClient(c)
	if client == nil {
		return session.State{}
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), guardWait)
	defer cancel()
	st, _ := client.Store.Await(ctx)
	return st
}
