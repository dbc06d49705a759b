package course

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/auth"
)

const defaultNearbyRadiusM = 2000.0

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateMapRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		m, err := svc.CreateMap(c.Context(), auth.UserID(c), req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		maps, err := svc.ListMaps(c.Context(), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(maps)
	})

	r.Get("/nearby", func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius := c.QueryFloat("radius_m", defaultNearbyRadiusM)
		maps, err := svc.Nearby(c.Context(), lat, lng, radius)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(maps)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		m, err := svc.GetMap(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "map not found")
		}
		return c.JSON(m)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		err := svc.DeleteMap(c.Context(), c.Params("id"), auth.UserID(c))
		switch {
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(fiber.StatusNotFound, "map not found")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
