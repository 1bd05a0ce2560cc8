package middleware

import (
	"time"

	"webcarros/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ClientCookie identifies a browser's client session.
const ClientCookie = "wc_client"

const (
	clientLocal   = "client"
	identityLocal = "identity"
	clientTTL     = 365 * 24 * time.Hour
)

// ClientSession resolves the request's client session, issuing a cookie on first contact.
func ClientSession(reg *session.Registry, secure bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(ClientCookie)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Cookie(&fiber.Cookie{
			Name:     ClientCookie,
			Value:    id,
			Path:     "/",
			Expires:  time.Now().Add(clientTTL),
			HTTPOnly: true,
			Secure:   secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})

		client := reg.Get(id)
		c.Locals("clientID", id)
		c.Locals(clientLocal, client)
		if st := client.Store.State(); st.Identity != nil {
			c.Locals("userID", st.Identity.ID)
		}
		return c.Next()
	}
}

// CurrentClient returns the client session resolved by ClientSession.
func CurrentClient(c *fiber.Ctx) *session.Client {
	client, _ := c.Locals(clientLocal).(*session.Client)
	return client
}
