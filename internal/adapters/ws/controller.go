package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomWSController bridges upgraded connections into room calls.
type RoomWSController struct {
	Rooms   core.RoomManager
	Cfg     *config.Config
	limiter *MessageRateLimiter
}

func NewRoomWSController(rooms core.RoomManager, cfg *config.Config) *RoomWSController {
	return &RoomWSController{
		Rooms:   rooms,
		Cfg:     cfg,
		limiter: NewMessageRateLimiter(cfg.MessageRateLimit, cfg.MessageRateInterval),
	}
}

// HandleRoom validates the request, upgrades it and attaches the caller
// as a session of the named room.
func (ctl *RoomWSController) HandleRoom(ctx context.Context, c *gin.Context) {
	name := domain.RoomName(strings.Trim(c.Param("name"), "/"))
	if name == "" {
		c.String(http.StatusBadRequest, "missing room name, connect to /room/<name>")
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusUpgradeRequired, "expected a WebSocket upgrade request")
		return
	}

	room := ctl.Rooms.GetOrCreate(name)
	if limit := ctl.Cfg.RoomCapacity; limit > 0 && room.MemberCount() >= limit {
		c.String(http.StatusServiceUnavailable, "room is full")
		return
	}

	wsc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("room", string(name)).Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		wsc.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWsConn(wsc)
	log.Info().Str("module", "ws").Str("room", string(name)).Str("sid", string(sid)).Msg("new WS connection")

	room.Join(sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	// Server shutdown does not touch hijacked connections; closing here
	// unblocks the read pump. readPump cancels ctx on exit, so this
	// watcher never outlives the connection.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, room, conn)
}
