package core

import (
	"github.com/dkeye/Relay/internal/domain"
)

// Frame is a raw text payload as it travels over the wire.
type Frame []byte

type SessionID string

// SignalConnection abstracts the transport endpoint of one session.
// Owned by the adapter; the adapter must Close() it. Close is idempotent,
// so the room may also Close() a connection it evicts.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MessageLog is the durable append-only log scoped to one room.
// Append may fail; the room treats a failed append as non-fatal.
type MessageLog interface {
	Append(msg domain.Message) error
}

// LogFactory hands out the MessageLog for a room name.
type LogFactory interface {
	ForRoom(name domain.RoomName) MessageLog
}

// RoomService is the core-facing API of a room. All methods may be called
// from any goroutine; they enqueue onto the room's own command loop.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int

	// Join registers a session. It never fails; capacity policy is the
	// caller's concern, applied before the upgrade.
	Join(sid SessionID, conn SignalConnection)

	// HandleMessage persists the payload, then fans it out to every
	// other member. The sender does not receive its own message back.
	HandleMessage(sid SessionID, payload Frame)

	// HandleClose removes the session (idempotent) and notifies the
	// remaining members that someone left.
	HandleClose(sid SessionID, code int, reason string)

	// HandleError records a transport error. Removal happens via the
	// close event that always follows it.
	HandleError(sid SessionID, err error)

	// Broadcast delivers text, timestamp-prefixed, to every member.
	Broadcast(text string)
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// RoomManager resolves a room name to its single RoomService instance.
type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	List() []RoomInfo
	StopRoom(name domain.RoomName)
	Shutdown()
}
