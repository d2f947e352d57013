package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// ProctoringHandler records integrity signals and lists them for staff.
type ProctoringHandler struct {
	service service.ProctoringService
	logger  zerolog.Logger
}

// NewProctoringHandler constructs a proctoring handler.
func NewProctoringHandler(service service.ProctoringService, logger zerolog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		service: service,
		logger:  logger.With().Str("component", "proctoring_handler").Logger(),
	}
}

// Register attaches the student routes.
func (h *ProctoringHandler) Register(router fiber.Router) {
	router.Post("/sessions", h.startSession)
	router.Post("/sessions/:sessionId/end", h.endSession)
	router.Post("/violations", h.recordViolation)
}

// RegisterAdmin attaches the staff routes.
func (h *ProctoringHandler) RegisterAdmin(router fiber.Router) {
	router.Get("/violations", h.listViolations)
	router.Get("/assessments/:id/sessions", h.listSessions)
}

func (h *ProctoringHandler) startSession(c *fiber.Ctx) error {
	var payload dto.ProctoringStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.service.StartSession(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "proctoring session started", session)
}

func (h *ProctoringHandler) endSession(c *fiber.Ctx) error {
	session, err := h.service.EndSession(requestContext(c), userIDFromContext(c), c.Params("sessionId"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "proctoring session ended", session)
}

func (h *ProctoringHandler) recordViolation(c *fiber.Ctx) error {
	var payload dto.ViolationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.service.RecordViolation(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "violation recorded", session)
}

func (h *ProctoringHandler) listViolations(c *fiber.Ctx) error {
	assessmentID, err := parseQueryUint(c, "assessment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, err := parseQueryUint(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	violations, err := h.service.ListViolations(requestContext(c), dto.ViolationListRequest{
		AssessmentID: assessmentID,
		UserID:       userID,
		SessionID:    c.Query("session_id"),
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "violations retrieved", violations)
}

func (h *ProctoringHandler) listSessions(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	sessions, err := h.service.ListSessions(requestContext(c), assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "proctoring sessions retrieved", sessions)
}
