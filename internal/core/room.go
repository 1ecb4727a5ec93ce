package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// broadcastTimeLayout mirrors the browser's toLocaleString output so
// server broadcasts and the client's local echo render the same way.
const broadcastTimeLayout = "1/2/2006, 3:04:05 PM"

const departureNotice = "A user has left the room."

// commandBuffer bounds how many operations a room holds before
// producers block waiting for the loop to drain. Commands are never
// shed while the room is running: a lost join would leave a connected
// client unregistered and a lost close would leave a ghost member.
const commandBuffer = 64

type command any

type joinCmd struct {
	sid  SessionID
	conn SignalConnection
}

type messageCmd struct {
	sid     SessionID
	payload Frame
}

type closeCmd struct {
	sid    SessionID
	code   int
	reason string
}

type errorCmd struct {
	sid SessionID
	err error
}

type broadcastCmd struct {
	text string
}

// room is the serialized owner of one room's membership and message flow.
// Every mutation goes through the command channel and is applied by the
// single Run goroutine, so the registry needs no locking and two rooms
// never share state.
type room struct {
	name     domain.RoomName
	messages MessageLog
	registry *sessionRegistry
	commands chan command
	done     chan struct{}
	members  atomic.Int64
}

func newRoom(name domain.RoomName, messages MessageLog) *room {
	return &room{
		name:     name,
		messages: messages,
		registry: newSessionRegistry(),
		commands: make(chan command, commandBuffer),
		done:     make(chan struct{}),
	}
}

func (r *room) Name() domain.RoomName { return r.name }

func (r *room) MemberCount() int { return int(r.members.Load()) }

func (r *room) Join(sid SessionID, conn SignalConnection) {
	r.enqueue(joinCmd{sid: sid, conn: conn})
}

func (r *room) HandleMessage(sid SessionID, payload Frame) {
	r.enqueue(messageCmd{sid: sid, payload: payload})
}

func (r *room) HandleClose(sid SessionID, code int, reason string) {
	r.enqueue(closeCmd{sid: sid, code: code, reason: reason})
}

func (r *room) HandleError(sid SessionID, err error) {
	r.enqueue(errorCmd{sid: sid, err: err})
}

func (r *room) Broadcast(text string) {
	r.enqueue(broadcastCmd{text: text})
}

// enqueue blocks until the loop accepts the command. Each producer is a
// per-session goroutine, so suspending here is the backpressure. Once
// the room has stopped the command is discarded instead, so producers
// never hang on a dead room.
func (r *room) enqueue(cmd command) {
	select {
	case r.commands <- cmd:
	case <-r.done:
		log.Warn().Str("module", "core.room").Str("room", string(r.name)).Msg("room stopped, command discarded")
	}
}

// Run drains the command queue until ctx is cancelled. Exactly one Run
// goroutine exists per room.
func (r *room) Run(ctx context.Context) {
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("room started")
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("room stopped")
			return
		case cmd := <-r.commands:
			r.apply(cmd)
		}
	}
}

func (r *room) apply(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		r.registry.add(c.sid, c.conn)
		r.members.Store(int64(r.registry.len()))
		log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(c.sid)).Msg("session joined")
	case messageCmd:
		at := time.Now()
		if r.messages != nil {
			msg := domain.Message{Text: string(c.payload), At: at}
			if err := r.messages.Append(msg); err != nil {
				// Best-effort durability: a lost persist does not block delivery.
				log.Error().Err(err).Str("module", "core.room").Str("room", string(r.name)).Msg("message append failed")
			}
		}
		r.deliver(format(at, string(c.payload)), c.sid)
	case closeCmd:
		if !r.registry.remove(c.sid) {
			return
		}
		r.members.Store(int64(r.registry.len()))
		log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(c.sid)).
			Int("code", c.code).Str("reason", c.reason).Msg("session closed")
		r.deliver(format(time.Now(), departureNotice), "")
	case errorCmd:
		// Cleanup happens via the close event that follows.
		log.Error().Err(c.err).Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(c.sid)).Msg("session error")
	case broadcastCmd:
		r.deliver(format(time.Now(), c.text), "")
	}
}

// deliver attempts a send to every registered session except the one
// identified by except, in insertion order. A failing session is evicted
// immediately and delivery continues for the rest.
func (r *room) deliver(text string, except SessionID) {
	frame := Frame(text)
	for _, sid := range r.registry.snapshot() {
		if sid == except {
			continue
		}
		conn, ok := r.registry.conn(sid)
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			r.registry.remove(sid)
			r.members.Store(int64(r.registry.len()))
			conn.Close()
			log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("send failed, session evicted")
		}
	}
}

func format(at time.Time, text string) string {
	return "[" + at.Format(broadcastTimeLayout) + "] " + text
}
