package middleware

import (
	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RBAC enforces the casbin policy for the caller's party key. Must run after
// Party().
func RBAC(enforcer *casbin.Enforcer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		party, ok := PartyFrom(c)
		if !ok {
			return unauthorized(c)
		}

		accepted, err := enforcer.Enforce(party.Key(), c.Path(), c.Method())
		if err != nil {
			log.Error().Err(err).Str("path", c.Path()).Msg("casbin enforce failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "error",
				"message": "Internal server error",
				"data":    nil,
			})
		}

		if !accepted {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "Forbidden",
				"data":    nil,
			})
		}

		return c.Next()
	}
}
