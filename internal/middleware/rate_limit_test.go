package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimitIsPerUserAndAssessment(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if c.Get("X-User") == "b" {
			c.Locals("user_id", uint(2))
		} else {
			c.Locals("user_id", uint(1))
		}
		return c.Next()
	})
	app.Post("/assessments/:id/run", RateLimit("run", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	call := func(path, user string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, call("/assessments/1/run", "a"))
	require.Equal(t, fiber.StatusTooManyRequests, call("/assessments/1/run", "a"))
	require.Equal(t, fiber.StatusOK, call("/assessments/2/run", "a"))
	require.Equal(t, fiber.StatusOK, call("/assessments/1/run", "b"))
}
