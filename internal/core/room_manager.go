package core

import (
	"context"
	"sync"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomEntry struct {
	room   *room
	cancel context.CancelFunc
}

// RoomManagerImpl maps a room name to its single room instance for the
// lifetime of the process. The lock guards only the create-if-absent
// step; it is never held during room operations.
type RoomManagerImpl struct {
	ctx    context.Context
	cancel context.CancelFunc
	logs   LogFactory

	mu    sync.RWMutex
	rooms map[domain.RoomName]*roomEntry
}

// NewRoomManager builds a manager whose rooms persist messages through
// logs. A nil logs factory disables persistence entirely.
func NewRoomManager(parent context.Context, logs LogFactory) RoomManager {
	ctx, cancel := context.WithCancel(parent)
	return &RoomManagerImpl{
		ctx:    ctx,
		cancel: cancel,
		logs:   logs,
		rooms:  make(map[domain.RoomName]*roomEntry),
	}
}

func (m *RoomManagerImpl) GetOrCreate(name domain.RoomName) RoomService {
	m.mu.RLock()
	entry, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return entry.room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok = m.rooms[name]; ok {
		return entry.room
	}

	var messages MessageLog
	if m.logs != nil {
		messages = m.logs.ForRoom(name)
	}
	rm := newRoom(name, messages)
	roomCtx, roomCancel := context.WithCancel(m.ctx)
	m.rooms[name] = &roomEntry{room: rm, cancel: roomCancel}
	go rm.Run(roomCtx)
	log.Info().Str("module", "core.manager").Str("room", string(name)).Msg("room created")
	return rm
}

func (m *RoomManagerImpl) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, entry := range m.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: entry.room.MemberCount()})
	}
	return out
}

func (m *RoomManagerImpl) StopRoom(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.rooms[name]; ok {
		entry.cancel()
		delete(m.rooms, name)
	}
}

// Shutdown stops every room loop. Live connections are torn down by the
// HTTP server's own shutdown.
func (m *RoomManagerImpl) Shutdown() {
	m.cancel()
	m.mu.Lock()
	m.rooms = make(map[domain.RoomName]*roomEntry)
	m.mu.Unlock()
}
