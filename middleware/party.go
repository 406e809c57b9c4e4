package middleware

import (
	"support-chat/protocol"
	"support-chat/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const partyKey = "party"

// Party turns the verified JWT into a protocol.Party. Must run after JWT().
func Party() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return unauthorized(c)
		}
		claims, ok := user.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c)
		}
		party, err := utils.PartyFromClaims(claims)
		if err != nil {
			return unauthorized(c)
		}
		c.Locals(partyKey, party)
		return c.Next()
	}
}

// PartyFrom returns the caller set by Party().
func PartyFrom(c *fiber.Ctx) (protocol.Party, bool) {
	party, ok := c.Locals(partyKey).(protocol.Party)
	return party, ok
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"status":  "error",
		"message": "Unauthorized",
		"data":    nil,
	})
}
