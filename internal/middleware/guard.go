package middleware

import (
	"context"
	"time"

	"webcarros/internal/models"
	"webcarros/internal/session"

	"github.com/gofiber/fiber/v2"
)

// Outcome is what a gated page does for a given session state.
type Outcome int

const (
	// RenderNothing shows an empty page while the auth check is pending.
	RenderNothing Outcome = iota
	// RedirectToLogin sends anonymous visitors to /login.
	RedirectToLogin
	// RenderView renders the protected page.
	RenderView
)

func (o Outcome) String() string {
	switch o {
	case RenderNothing:
		return "render_nothing"
	case RedirectToLogin:
		return "redirect_to_login"
	default:
		return "render_view"
	}
}

// Decide maps a session state to a guard outcome.
func Decide(st session.State) Outcome {
	switch {
	case st.Loading:
		return RenderNothing
	case st.Identity == nil:
		return RedirectToLogin
	default:
		return RenderView
	}
}

const blankPage = `<!doctype html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"></head><body><div></div></body></html>`

// RequireIdentity gates a page on a signed-in identity. It waits up to wait
// for the initial auth check before giving up with an empty, self-refreshing page.
func RequireIdentity(wait time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := CurrentClient(c)
		if client == nil {
			return c.Redirect("/login")
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), wait)
		st, _ := client.Store.Await(ctx)
		cancel()

		switch Decide(st) {
		case RenderNothing:
			c.Set(fiber.HeaderCacheControl, "no-store")
			return c.Type("html").SendString(blankPage)
		case RedirectToLogin:
			return c.Redirect("/login")
		}

		c.Locals(identityLocal, st.Identity)
		c.Locals("userID", st.Identity.ID)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, st.Identity.ID))
		return c.Next()
	}
}

// CurrentIdentity returns the identity admitted by RequireIdentity.
func CurrentIdentity(c *fiber.Ctx) *models.Identity {
	id, _ := c.Locals(identityLocal).(*models.Identity)
	return id
}
