package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReviewHandler serves assessment reviews and their exports.
type ReviewHandler struct {
	service service.ReviewService
	logger  zerolog.Logger
}

// NewReviewHandler constructs a review handler.
func NewReviewHandler(service service.ReviewService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: service,
		logger:  logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register attaches the student routes below an assessments group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/completions", h.completions)
	router.Get("/:id/review", h.ownReview)
	router.Get("/:id/review/workbook", h.ownWorkbook)
	router.Post("/:id/review/export", h.ownExport)
}

// RegisterAdmin attaches the staff routes below the admin assessments group.
func (h *ReviewHandler) RegisterAdmin(router fiber.Router) {
	router.Get("/:id/reviews", h.list)
	router.Get("/:id/reviews/:userId", h.review)
	router.Get("/:id/reviews/:userId/workbook", h.workbook)
	router.Post("/:id/reviews/:userId/export", h.export)
}

func (h *ReviewHandler) completions(c *fiber.Ctx) error {
	completions, err := h.service.Completions(requestContext(c), userIDFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "completions retrieved", completions)
}

func (h *ReviewHandler) list(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	reviews, err := h.service.List(requestContext(c), assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "reviews retrieved", reviews)
}

func (h *ReviewHandler) ownReview(c *fiber.Ctx) error {
	return h.sendReview(c, userIDFromContext(c))
}

func (h *ReviewHandler) review(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.sendReview(c, userID)
}

func (h *ReviewHandler) ownWorkbook(c *fiber.Ctx) error {
	return h.sendWorkbook(c, userIDFromContext(c))
}

func (h *ReviewHandler) workbook(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.sendWorkbook(c, userID)
}

func (h *ReviewHandler) ownExport(c *fiber.Ctx) error {
	return h.sendExport(c, userIDFromContext(c))
}

func (h *ReviewHandler) export(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.sendExport(c, userID)
}

func (h *ReviewHandler) sendReview(c *fiber.Ctx, userID uint) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	review, err := h.service.Get(requestContext(c), actorFromContext(c), userID, assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "review retrieved", review)
}

func (h *ReviewHandler) sendWorkbook(c *fiber.Ctx, userID uint) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	data, name, err := h.service.Workbook(requestContext(c), actorFromContext(c), userID, assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Status(fiber.StatusOK).Send(data)
}

func (h *ReviewHandler) sendExport(c *fiber.Ctx, userID uint) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exported, err := h.service.Export(requestContext(c), actorFromContext(c), userID, assessmentID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "review exported", exported)
}
