package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const userIDKey = "userID"

// RequireUser resolves the acting user from the X-User-ID header set by the
// auth proxy. Token verification itself happens upstream; handlers only ever
// see an opaque user id.
func RequireUser(c *fiber.Ctx) error {
	header := c.Get("X-User-ID")
	if header == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing X-User-ID header"})
	}
	id, err := strconv.ParseUint(header, 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid X-User-ID header"})
	}
	c.Locals(userIDKey, uint(id))
	return c.Next()
}

// actorID returns the user id stored by RequireUser.
func actorID(c *fiber.Ctx) uint {
	id, _ := c.Locals(userIDKey).(uint)
	return id
}
