package run

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/location"
)

// CourseLoader resolves a stored map into a course.
type CourseLoader func(ctx context.Context, mapID string) (Course, error)

// SaveFunc persists a finished run on behalf of userID.
type SaveFunc func(ctx context.Context, userID string, final State) error

type HandlerDeps struct {
	LoadCourse CourseLoader
	SaveRun    SaveFunc
}

var validate = validator.New()

func RegisterRoutes(r fiber.Router, engine *Engine, deps HandlerDeps, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req Course
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if len(req.Checkpoints) == 0 && req.MapID != "" && deps.LoadCourse != nil {
			course, err := deps.LoadCourse(c.Context(), req.MapID)
			if err != nil {
				return fiber.NewError(fiber.StatusNotFound, "map not found")
			}
			if req.MapName != "" {
				course.MapName = req.MapName
			}
			req = course
		}

		st, err := engine.Start(c.Context(), req)
		var invalid *InvalidStateError
		switch {
		case errors.As(err, &invalid):
			return fiber.NewError(fiber.StatusConflict, invalid.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(st)
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var fix location.RawFix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if fix.Time.IsZero() {
			fix.Time = time.Now()
		}
		if err := engine.OnRawFix(c.Context(), fix); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(engine.Latest())
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		final, stopped, err := engine.stopRun(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}

		if stopped && deps.SaveRun != nil {
			userID, _ := c.Locals("user_id").(string)
			if err := deps.SaveRun(c.Context(), userID, final); err != nil {
				log.Printf("run %s: saving activity failed: %v", final.RunID, err)
			}
		}
		return c.JSON(final)
	})

	r.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(engine.Latest())
	})

	r.Get("/summary", func(c *fiber.Ctx) error {
		return c.JSON(engine.Latest().Summary())
	})

	r.Get("/active", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"active": engine.IsActive()})
	})
}
