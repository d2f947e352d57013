package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/session"
)

// TickSource streams countdown ticks of a student's assessment.
type TickSource interface {
	Subscribe(userID, assessmentID uint) (<-chan session.Tick, func())
}

// TimerHandler pushes the remaining time of an assessment over a websocket.
type TimerHandler struct {
	source TickSource
	logger zerolog.Logger
}

// NewTimerHandler constructs a timer handler.
func NewTimerHandler(source TickSource, logger zerolog.Logger) *TimerHandler {
	return &TimerHandler{
		source: source,
		logger: logger.With().Str("component", "timer_handler").Logger(),
	}
}

// Register binds the websocket route. The group must already authenticate the caller.
func (h *TimerHandler) Register(router fiber.Router) {
	router.Use("/assessments/:id/timer", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if _, err := parseUintParam(c, "id"); err != nil {
			return fiber.ErrBadRequest
		}
		return c.Next()
	})
	router.Get("/assessments/:id/timer", websocket.New(h.stream))
}

func (h *TimerHandler) stream(conn *websocket.Conn) {
	defer conn.Close()

	userID, _ := conn.Locals("user_id").(uint)
	assessmentID, err := strconv.ParseUint(conn.Params("id"), 10, 64)
	if userID == 0 || err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		return
	}

	ticks, unsubscribe := h.source.Subscribe(userID, uint(assessmentID))
	defer unsubscribe()

	observability.TimerStreamsActive().Inc()
	defer observability.TimerStreamsActive().Dec()

	logger := h.logger.With().Uint("user_id", userID).Uint64("assessment_id", assessmentID).Logger()
	logger.Debug().Msg("timer stream opened")

	// The client never sends data; reading only detects the close.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("timer stream closed by client")
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			if err := conn.WriteJSON(tick); err != nil {
				logger.Debug().Err(err).Msg("timer stream write failed")
				return
			}
			if tick.Expired {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "time expired"))
				return
			}
		}
	}
}
