package controller

import (
	"errors"
	"math"
	"strconv"

	"support-chat/middleware"
	"support-chat/protocol"
	"support-chat/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func success(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}

func badInput(c *fiber.Ctx) error {
	return failure(c, fiber.StatusBadRequest, "Review your input")
}

// fail maps service errors onto HTTP statuses. Validation messages are shown
// to the user as they are; anything unexpected is logged and hidden.
func fail(c *fiber.Ctx, err error) error {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		return failure(c, fiber.StatusTooManyRequests, "Too many requests, slow down")
	case errors.Is(err, service.ErrUnauthorized):
		return failure(c, fiber.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, service.ErrNotFound):
		return failure(c, fiber.StatusNotFound, "Not found")
	case service.IsValidation(err):
		return failure(c, fiber.StatusBadRequest, err.Error())
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return failure(c, fiber.StatusInternalServerError, "Internal server error")
}

func party(c *fiber.Ctx) (protocol.Party, error) {
	p, ok := middleware.PartyFrom(c)
	if !ok {
		return protocol.Party{}, service.ErrUnauthorized
	}
	return p, nil
}

func idParam(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
