package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// MessageStore is the append-only message log backed by BadgerDB.
// Each room writes only under its own key prefix, so rooms need no
// coordination between them.
type MessageStore struct {
	db *badger.DB
}

func Open(dir string) (*MessageStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	return &MessageStore{db: db}, nil
}

// OpenInMemory is for tests and ephemeral deployments.
func OpenInMemory() (*MessageStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory message store: %w", err)
	}
	return &MessageStore{db: db}, nil
}

func (s *MessageStore) Close() error { return s.db.Close() }

// ForRoom returns the log scoped to one room name.
func (s *MessageStore) ForRoom(name domain.RoomName) core.MessageLog {
	return &roomLog{db: s.db, prefix: []byte("room/" + name + "/")}
}

type roomLog struct {
	db     *badger.DB
	prefix []byte
}

// Append writes one entry keyed by arrival time in unix millis. Key
// uniqueness relies on the owning room processing its messages serially;
// two writes within the same millisecond in one room keep only the last.
func (l *roomLog) Append(msg domain.Message) error {
	key := fmt.Sprintf("%smessage: %d", l.prefix, msg.At.UnixMilli())
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(msg.Text))
	})
}
