package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler     *handler.CourseHandler
	QuestionHandler   *handler.QuestionHandler
	AssessmentHandler *handler.AssessmentHandler
	AttemptHandler    *handler.AttemptHandler
	ReviewHandler     *handler.ReviewHandler
	ProctoringHandler *handler.ProctoringHandler
	SubmissionHandler *handler.SubmissionHandler
	ActivityHandler   *handler.AdminActivityHandler
	TimerHandler      *handler.TimerHandler
	SeedHandler       *handler.SeedHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Tokens without a subject claim authenticate nobody.
	requireUser := middleware.RequireUser()

	v2 := app.Group("/api/v2", jwtMiddleware, requireUser)
	admin := v2.Group("/admin", middleware.RequireStaff())

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(v2.Group("/courses"))
		deps.CourseHandler.RegisterAdmin(admin.Group("/courses"))
	}
	if deps.QuestionHandler != nil {
		deps.QuestionHandler.RegisterAdmin(admin.Group("/questions"))
	}

	// Student assessment flow. Static paths register before the :id routes.
	assessments := v2.Group("/assessments")
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(assessments)
	}
	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(assessments)
	}
	if deps.AttemptHandler != nil {
		deps.AttemptHandler.Register(assessments)
	}

	adminAssessments := admin.Group("/assessments")
	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.RegisterAdmin(adminAssessments)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.RegisterAdmin(adminAssessments)
	}

	if deps.ProctoringHandler != nil {
		deps.ProctoringHandler.Register(v2.Group("/proctoring"))
		deps.ProctoringHandler.RegisterAdmin(admin.Group("/proctoring"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(v2.Group("/submissions"))
		deps.SubmissionHandler.RegisterAdmin(admin.Group("/submissions"))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(admin.Group("/activity"))
	}

	if deps.TimerHandler != nil {
		deps.TimerHandler.Register(app.Group("/ws", jwtMiddleware, requireUser))
	}
}
