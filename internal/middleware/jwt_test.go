package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func decodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func newJWTApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "role": c.Locals("user_role")})
	})
	return app
}

func TestJWTProtectedExtractsIdentity(t *testing.T) {
	app := newJWTApp()
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "42",
		"roles": []interface{}{"student", "Teacher", "auditor"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role"`
	}
	decodeJSON(t, resp, &body)
	require.Equal(t, uint(42), body.UserID)
	require.Equal(t, "teacher", body.Role)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := newJWTApp()
	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": 1}).SignedString([]byte("other"))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":   "",
		"scheme":    "Basic abc",
		"empty":     "Bearer ",
		"expired":   "Bearer " + expired,
		"wrong key": "Bearer " + wrongKey,
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, name)
	}
}

func TestJWTProtectedQueryTokenOnlyForWebsocket(t *testing.T) {
	app := newJWTApp()
	token := signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{"user_id": 7, "role": "student"})

	req := httptest.NewRequest(http.MethodGet, "/whoami?access_token="+token, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/whoami?access_token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRoleFromClaims(t *testing.T) {
	require.Equal(t, "admin", roleFromClaims(jwt.MapClaims{"role": " ADMIN "}))
	require.Equal(t, "student", roleFromClaims(jwt.MapClaims{"roles": "student"}))
	require.Equal(t, "", roleFromClaims(jwt.MapClaims{"roles": []interface{}{"auditor"}}))
	require.Equal(t, "", roleFromClaims(jwt.MapClaims{}))
}
