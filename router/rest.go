package router

import (
	"support-chat/controller"
	"support-chat/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func Rest(app *fiber.App, auth *controller.Auth, chat *controller.Chat, enforcer *casbin.Enforcer) {
	api := app.Group("/v1", logger.New())

	// Auth
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", auth.Signup)
	authGroup.Post("/signin", auth.Signin)
	authGroup.Post("/operator", auth.Operator)

	secured := []fiber.Handler{middleware.JWT(), middleware.Party()}

	// User
	user := api.Group("/user", secured...)
	user.Get("/profile", auth.Profile)

	// Chat
	api.Post("/chat/bootstrap", append(secured, chat.Bootstrap)...)

	conversations := api.Group("/conversations", secured...)
	conversations.Get("/:id/messages", chat.Messages)
	conversations.Post("/:id/messages", chat.SendMessage)
	conversations.Post("/:id/typing", chat.Typing)

	api.Post("/messages/:id/reactions", append(secured, chat.ToggleReaction)...)
	api.Get("/images/:id", append(secured, chat.Image)...)
	api.Post("/push/subscribe", append(secured, chat.SubscribePush)...)

	// Admin
	admin := api.Group("/admin", append(secured, middleware.RBAC(enforcer))...)
	admin.Get("/conversations", chat.AdminConversations)
}
