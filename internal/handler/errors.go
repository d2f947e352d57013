package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/session"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

type errorMapping struct {
	target error
	status int
}

var errorStatuses = []errorMapping{
	{service.ErrCourseNotFound, fiber.StatusNotFound},
	{service.ErrQuestionNotFound, fiber.StatusNotFound},
	{service.ErrAssessmentNotFound, fiber.StatusNotFound},
	{service.ErrReviewNotFound, fiber.StatusNotFound},
	{service.ErrSubmissionNotFound, fiber.StatusNotFound},
	{service.ErrProctoringSessionNotFound, fiber.StatusNotFound},
	{service.ErrQuestionNotInAssessment, fiber.StatusNotFound},
	{service.ErrNotEnrolled, fiber.StatusForbidden},
	{service.ErrForbidden, fiber.StatusForbidden},
	{service.ErrAssessmentCompleted, fiber.StatusConflict},
	{service.ErrChancesExhausted, fiber.StatusConflict},
	{service.ErrProctoringSessionEnded, fiber.StatusConflict},
	{service.ErrSessionNotStarted, fiber.StatusConflict},
	{session.ErrRunRequired, fiber.StatusConflict},
	{session.ErrInvalidTransition, fiber.StatusConflict},
	{service.ErrTimeExpired, fiber.StatusGone},
	{service.ErrUnknownQuestions, fiber.StatusBadRequest},
	{service.ErrUnsupportedLanguage, fiber.StatusBadRequest},
	{service.ErrInvalidExpectedOutput, fiber.StatusBadRequest},
	{service.ErrInvalidImportFile, fiber.StatusUnsupportedMediaType},
	{service.ErrReviewerUnavailable, fiber.StatusServiceUnavailable},
	{service.ErrExportUnavailable, fiber.StatusServiceUnavailable},
}

// handleError maps service errors onto the response envelope. Unknown errors are
// logged and reported as 500 without their message.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	}

	for _, mapping := range errorStatuses {
		if errors.Is(err, mapping.target) {
			return utils.SendError(c, mapping.status, err.Error())
		}
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}
