package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

type mockSeedService struct {
	err        error
	lastToken  string
	lastUsers  []models.User
	lastCourse uint
	lastEmails []string
	result     service.SeedResult
}

func (m *mockSeedService) SeedUsers(_ context.Context, token string, users []models.User) (service.SeedResult, error) {
	m.lastToken = token
	m.lastUsers = users
	return m.result, m.err
}

func (m *mockSeedService) SeedEnrollments(_ context.Context, token string, courseID uint, emails []string) (service.SeedResult, error) {
	m.lastToken = token
	m.lastCourse = courseID
	m.lastEmails = emails
	return m.result, m.err
}

func newSeedApp(svc service.SeedService) *fiber.App {
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/seed"))
	return app
}

func postSeed(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Seed-Token", "secret")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestSeedHandler_UsersSuccess(t *testing.T) {
	svc := &mockSeedService{result: service.SeedResult{Affected: 2}}
	app := newSeedApp(svc)

	resp := postSeed(t, app, "/api/v1/seed/users", map[string]interface{}{
		"items": []models.User{{Name: "Ada", Email: "ada@example.com"}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "secret", svc.lastToken)
	require.Len(t, svc.lastUsers, 1)

	var result service.SeedResult
	decodeData(t, readEnvelope(t, resp), &result)
	require.Equal(t, int64(2), result.Affected)
}

func TestSeedHandler_EnrollmentsErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
		message    string
	}{
		{name: "disabled", err: service.ErrSeedDisabled, statusCode: fiber.StatusForbidden, message: "seeding disabled"},
		{name: "unauthorized", err: service.ErrSeedUnauthorized, statusCode: fiber.StatusForbidden, message: "invalid token"},
		{name: "missing course", err: service.ErrCourseNotFound, statusCode: fiber.StatusNotFound, message: service.ErrCourseNotFound.Error()},
		{name: "generic", err: errors.New("boom"), statusCode: fiber.StatusInternalServerError, message: "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockSeedService{err: tc.err}
			resp := postSeed(t, newSeedApp(svc), "/api/v1/seed/courses/7/enrollments", map[string]interface{}{
				"emails": []string{"ada@example.com"},
			})
			require.Equal(t, tc.statusCode, resp.StatusCode)
			require.Equal(t, uint(7), svc.lastCourse)

			env := readEnvelope(t, resp)
			require.False(t, env.Success)
			require.Equal(t, tc.message, env.Message)
		})
	}
}

func TestSeedHandler_InvalidPayload(t *testing.T) {
	svc := &mockSeedService{}
	app := newSeedApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/seed/users", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Nil(t, svc.lastUsers)

	resp = postSeed(t, app, "/api/v1/seed/courses/0/enrollments", map[string]interface{}{"emails": []string{}})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
