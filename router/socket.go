package router

import (
	"context"
	"time"

	"support-chat/presence"
	"support-chat/protocol"
	"support-chat/utils"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/v2/socket"
)

type InitConnection struct {
	Party protocol.Party `json:"party"`
}

// Socket marks connected parties online and greets them. Anonymous sockets
// receive nothing: hints are only addressed to party rooms.
func Socket(server *socket.Server, ledger presence.Ledger) {
	server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		meta, ok := client.Data().(*utils.TokenMetadata)
		if !ok {
			client.Disconnect(true)
			return
		}

		heartbeat := func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := ledger.Set(ctx, presence.Online, presence.OnlineKey(meta.Party), time.Now()); err != nil {
				log.Debug().Err(err).Str("party", meta.Party.Key()).Msg("socket heartbeat failed")
			}
		}
		heartbeat()

		client.On("heartbeat", func(...interface{}) {
			heartbeat()
		})

		client.On("disconnect", func(...interface{}) {
			log.Debug().Str("party", meta.Party.Key()).Msg("socket disconnected")
		})

		client.Emit("init", InitConnection{Party: meta.Party})
	})
}
