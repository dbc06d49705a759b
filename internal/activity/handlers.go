package activity

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/auth"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		activities, err := svc.List(c.Context(), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(activities)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.Get(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "activity not found")
		}
		return c.JSON(a)
	})

	r.Get("/:id/replay", authMiddleware, func(c *fiber.Ctx) error {
		visits, err := svc.Replay(c.Context(), c.Params("id"), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(fiber.Map{"visits": visits})
	})
}
