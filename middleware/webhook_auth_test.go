package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookTestApp(secret string) *fiber.App {
	app := fiber.New()
	app.Post("/webhooks/engagement/:provider", WebhookAuth(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "ok"})
	})
	return app
}

func TestWebhookAuth(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		url        string
		wantStatus int
	}{
		{"valid token passes", "s3cret", "/webhooks/engagement/smartlead?token=s3cret", fiber.StatusOK},
		{"wrong token rejected", "s3cret", "/webhooks/engagement/smartlead?token=guess", fiber.StatusUnauthorized},
		{"missing token rejected", "s3cret", "/webhooks/engagement/smartlead", fiber.StatusUnauthorized},
		{"unconfigured intake rejects everything", "", "/webhooks/engagement/smartlead?token=anything", fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := webhookTestApp(tt.secret)
			req := httptest.NewRequest(fiber.MethodPost, tt.url, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Contains(t, string(body), "error")
			}
		})
	}
}
