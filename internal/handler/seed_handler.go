package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// SeedHandler exposes tooling endpoints for seeding accounts and enrollments.
type SeedHandler struct {
	service service.SeedService
	logger  zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service: service,
		logger:  logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register wires seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/users", h.users)
	router.Post("/courses/:id/enrollments", h.enrollments)
}

type seedUsersRequest struct {
	Items []models.User `json:"items"`
}

type seedEnrollmentsRequest struct {
	Emails []string `json:"emails"`
}

func (h *SeedHandler) users(c *fiber.Ctx) error {
	var payload seedUsersRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SeedUsers(requestContext(c), c.Get("X-Seed-Token"), payload.Items)
	if err != nil {
		return h.seedError(c, err)
	}
	return utils.SendSuccess(c, "users seeded", result)
}

func (h *SeedHandler) enrollments(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload seedEnrollmentsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SeedEnrollments(requestContext(c), c.Get("X-Seed-Token"), courseID, payload.Emails)
	if err != nil {
		return h.seedError(c, err)
	}
	return utils.SendSuccess(c, "enrollments seeded", result)
}

func (h *SeedHandler) seedError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, "seeding disabled")
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusForbidden, "invalid token")
	default:
		return handleError(c, h.logger, err)
	}
}
