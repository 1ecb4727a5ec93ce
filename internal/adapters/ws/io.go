package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *RoomWSController) writePump(ctx context.Context, c *WsConn) {
	period := ctl.Cfg.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "ws").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *RoomWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, room core.RoomService, c *WsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("readPump closing")
		ctl.limiter.Forget(sid)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("readPump ctx done")
			room.HandleClose(sid, websocket.CloseGoingAway, "server shutdown")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					// The watcher closed the conn on shutdown; not a
					// transport fault.
					room.HandleClose(sid, websocket.CloseGoingAway, "server shutdown")
					return
				}
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					room.HandleClose(sid, ce.Code, ce.Text)
				} else {
					// Transport fault: report it, then the close event
					// performs the cleanup.
					room.HandleError(sid, err)
					room.HandleClose(sid, websocket.CloseAbnormalClosure, err.Error())
				}
				return
			}
			if !ctl.limiter.Allow(sid) {
				log.Warn().Str("module", "ws").Str("sid", string(sid)).Msg("message rate limit exceeded, dropping")
				continue
			}
			room.HandleMessage(sid, core.Frame(data))
		}
	}
}
