package archive

import (
	"context"
	"sync"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

// Memory is an in-memory archive used when no database is configured,
// and by tests.
type Memory struct {
	mu    sync.RWMutex
	games map[uint64]Entry
}

type Entry struct {
	Snapshot arenadto.Snapshot
	Method   string
}

func NewMemory() *Memory {
	return &Memory{games: make(map[uint64]Entry)}
}

func (m *Memory) SaveResult(_ context.Context, snap *arenadto.Snapshot, method string) error {
	if snap == nil {
		return nil
	}
	m.mu.Lock()
	m.games[snap.RoomID] = Entry{Snapshot: *snap, Method: method}
	m.mu.Unlock()
	return nil
}

// Get returns the stored entry for a room, if any.
func (m *Memory) Get(roomID uint64) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.games[roomID]
	return e, ok
}

// Len reports how many finished games have been recorded.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
