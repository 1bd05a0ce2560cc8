package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"webcarros/internal/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAuth(t *testing.T) {
	issuer := identity.NewTokenIssuer("middleware-test-secret-32-chars-long", time.Hour)
	verifier := identity.NewProvider(nil, issuer, nil)

	valid, err := issuer.Issue("user-42", "a@b.c")
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", BearerAuth(verifier), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{"missing header", "", fiber.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized, "Invalid authorization header format"},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized, "Invalid or expired token"},
		{"valid token", "Bearer " + valid, fiber.StatusOK, "user-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.expectedBody)
		})
	}
}
