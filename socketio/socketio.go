// Package socketio carries sync hints: small "poll now" nudges pushed to a
// party's room after every write. Clients still read through the cursor API.
package socketio

import (
	"context"
	"time"

	"support-chat/protocol"
	"support-chat/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
)

const EventSync = "sync"

type Hub struct {
	server *socket.Server
}

// Init mounts the socket.io endpoint on app. With a redis client the rooms are
// shared across instances through the redis adapter.
func Init(app *fiber.App, rdb *redis.Client) *Hub {
	log.DEBUG = zerolog.GlobalLevel() <= zerolog.DebugLevel

	options := socket.DefaultServerOptions()
	options.SetServeClient(false)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1 << 20)
	options.SetConnectTimeout(5 * time.Second)
	if rdb != nil {
		options.SetAdapter(&adapter.RedisAdapterBuilder{
			Redis: r_type.NewRedisClient(context.Background(), rdb),
			Opts:  &adapter.RedisAdapterOptions{},
		})
	}

	server := socket.NewServer(nil, options)

	server.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, auth := client.Conn().Request().Query().Get("token")

		if auth {
			meta, err := utils.CheckAndExtractTokenMetadata(token)
			if err == nil {
				client.Join(socket.Room(meta.Party.Key()))
				client.SetData(meta)
			}
		}

		next(nil)
	})

	app.Get("/socket.io/", adaptor.HTTPHandler(server.ServeHandler(options)))
	app.Post("/socket.io/", adaptor.HTTPHandler(server.ServeHandler(options)))

	return &Hub{server: server}
}

func (h *Hub) Server() *socket.Server {
	return h.server
}

// Hint tells every connection of the party to poll now.
func (h *Hub) Hint(to protocol.Party, hint protocol.SyncHint) {
	if err := h.server.To(socket.Room(to.Key())).Emit(EventSync, hint); err != nil {
		zlog.Debug().Err(err).Str("party", to.Key()).Msg("sync hint failed")
	}
}

func (h *Hub) Close() {
	h.server.Close(nil)
}
