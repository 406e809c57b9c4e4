package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat/config"
	"support-chat/controller"
	"support-chat/database"
	"support-chat/event"
	"support-chat/logger"
	"support-chat/presence"
	"support-chat/push"
	"support-chat/ratelimit"
	"support-chat/router"
	"support-chat/service"
	"support-chat/socketio"
	"support-chat/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init(config.String("LOG_LEVEL", "info"))

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "support-chat",
		BodyLimit:             4 << 20,
	})

	rest.Use(recover.New())
	rest.Use(cors.New())

	db, err := database.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	st := store.New(db)

	var rdb *redis.Client
	presenceBackend := config.String("PRESENCE_BACKEND", "memory")
	ratelimitBackend := config.String("RATELIMIT_BACKEND", "memory")
	socketEnabled := config.Bool("SOCKETIO", true)
	if presenceBackend == "redis" || ratelimitBackend == "redis" || (socketEnabled && config.Bool("SOCKETIO_REDIS", false)) {
		if rdb, err = database.RedisConnect(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
	}

	var ledger presence.Ledger = presence.NewMemory()
	if presenceBackend == "redis" {
		ledger = presence.NewRedis(rdb)
	}

	var limiter ratelimit.Limiter
	switch ratelimitBackend {
	case "redis":
		limiter = ratelimit.NewRedis(rdb, ratelimit.DefaultRules)
	case "disable":
		limiter = ratelimit.Unlimited{}
	default:
		memory := ratelimit.NewMemory(ratelimit.DefaultRules)
		defer memory.Close()
		limiter = memory
	}

	var (
		broker   *event.Broker
		notifier push.Notifier
	)
	switch mode := config.String("PUSH_MODE", "log"); mode {
	case "rabbitmq":
		broker, err = event.RabbitMQConnect(event.URL(), []string{push.Queue})
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq")
		}
		notifications := make(chan event.EventChannelData)
		if err := broker.Subscribe(push.Queue, notifications); err != nil {
			log.Fatal().Err(err).Msg("rabbitmq subscribe")
		}
		go push.NewListener(st, push.LogDeliverer{}).Run(notifications)
		notifier = push.NewQueueNotifier(broker)
	case "log":
		notifier = push.LogNotifier{}
	case "disable":
	default:
		log.Fatal().Str("mode", mode).Msg("unknown PUSH_MODE")
	}

	opts := []service.Option{}
	if notifier != nil {
		opts = append(opts, service.WithPusher(push.NewAsync(notifier, 5*time.Second, 64)))
	}

	var hub *socketio.Hub
	if socketEnabled {
		var socketRedis *redis.Client
		if config.Bool("SOCKETIO_REDIS", false) {
			socketRedis = rdb
		}
		hub = socketio.Init(rest, socketRedis)
		router.Socket(hub.Server(), ledger)
		opts = append(opts, service.WithHinter(hub))
	}

	svc := service.New(st, ledger, limiter, opts...)

	enforcer, err := database.Casbin(db)
	if err != nil {
		log.Fatal().Err(err).Msg("casbin")
	}

	router.Rest(rest, controller.NewAuth(st), controller.NewChat(svc), enforcer)

	port := config.String("SERVER_PORT", "8080")
	go func() {
		if err := rest.Listen(fmt.Sprintf(":%s", port)); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()
	log.Info().Str("port", port).Msg("support-chat started")

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	log.Info().Msg("shutting down")
	if err := rest.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if hub != nil {
		hub.Close()
	}
	if broker != nil {
		broker.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
}
