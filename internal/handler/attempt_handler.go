package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// AttemptHandler drives a student's question sessions inside an assessment.
type AttemptHandler struct {
	service service.AttemptService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewAttemptHandler constructs an attempt handler. limiter guards run and submit;
// nil disables it.
func NewAttemptHandler(service service.AttemptService, limiter fiber.Handler, logger zerolog.Logger) *AttemptHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AttemptHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches the attempt routes below an assessments group.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Get("/:id/questions/:questionId", h.enter)
	router.Post("/:id/questions/:questionId/run", h.limiter, h.run)
	router.Post("/:id/questions/:questionId/reset", h.reset)
	router.Put("/:id/questions/:questionId/draft", h.save)
	router.Post("/:id/questions/:questionId/submit", h.limiter, h.submit)
	router.Post("/:id/restart", h.restart)
	router.Post("/:id/leave", h.leave)
}

func (h *AttemptHandler) ids(c *fiber.Ctx) (uint, uint, error) {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return 0, 0, err
	}
	return assessmentID, questionID, nil
}

func (h *AttemptHandler) enter(c *fiber.Ctx) error {
	assessmentID, questionID, err := h.ids(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.service.Enter(requestContext(c), userIDFromContext(c), assessmentID, questionID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "question session ready", state)
}

func (h *AttemptHandler) run(c *fiber.Ctx) error {
	assessmentID, questionID, err := h.ids(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Run(requestContext(c), userIDFromContext(c), assessmentID, questionID, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "code executed", result)
}

func (h *AttemptHandler) reset(c *fiber.Ctx) error {
	assessmentID, questionID, err := h.ids(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.service.Reset(requestContext(c), userIDFromContext(c), assessmentID, questionID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "question reset", state)
}

func (h *AttemptHandler) save(c *fiber.Ctx) error {
	assessmentID, questionID, err := h.ids(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	saved, err := h.service.Save(requestContext(c), userIDFromContext(c), assessmentID, questionID, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "draft saved", saved)
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	assessmentID, questionID, err := h.ids(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Submit(requestContext(c), userIDFromContext(c), assessmentID, questionID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	message := "question submitted"
	if result.Completed {
		message = "assessment completed"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *AttemptHandler) restart(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Restart(requestContext(c), userIDFromContext(c), assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "assessment restarted", result)
}

func (h *AttemptHandler) leave(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Leave(requestContext(c), userIDFromContext(c), assessmentID); err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "progress saved", nil)
}
