package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newCorrelationApp(seen *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		*seen = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestCorrelationIDReusesPlainClientIDs(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42.a")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-42.a", resp.Header.Get("X-Correlation-ID"))
	require.Equal(t, "req-42.a", seen)
}

func TestCorrelationIDReplacesUnsafeIDs(t *testing.T) {
	for _, incoming := range []string{"", "bad id\nwith newline", strings.Repeat("a", 65), "<script>"} {
		var seen string
		app := newCorrelationApp(&seen)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", incoming)
		resp, err := app.Test(req)
		require.NoError(t, err)

		id := resp.Header.Get("X-Correlation-ID")
		_, err = uuid.Parse(id)
		require.NoError(t, err, incoming)
		require.Equal(t, id, seen)
	}
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelation(nil, " ")
	require.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelation(ctx, "abc")
	require.Equal(t, "abc", CorrelationIDFromContext(ctx))
	require.Equal(t, ctx, ContextWithCorrelation(ctx, "abc"))
}
