package gateway

import (
	"sync"
	"time"
)

type limiterKey struct {
	userID string
	roomID uint64
}

type windowState struct {
	start time.Time
	count int
}

// fixedWindow is a per-(user, room) fixed-window counter. A rejected call
// does not consume budget and carries no penalty beyond the open window.
type fixedWindow struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	buckets map[limiterKey]*windowState
}

func newFixedWindow(max int, window time.Duration) *fixedWindow {
	return &fixedWindow{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[limiterKey]*windowState),
	}
}

// Allow reports whether another event fits the current window, counting it
// if so.
func (l *fixedWindow) Allow(userID string, roomID uint64) bool {
	key := limiterKey{userID: userID, roomID: roomID}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	st, ok := l.buckets[key]
	if !ok || now.Sub(st.start) >= l.window {
		l.buckets[key] = &windowState{start: now, count: 1}
		return true
	}
	if st.count >= l.max {
		return false
	}
	st.count++
	return true
}

// DropUser evicts one (user, room) entry, e.g. when a user leaves.
func (l *fixedWindow) DropUser(userID string, roomID uint64) {
	l.mu.Lock()
	delete(l.buckets, limiterKey{userID: userID, roomID: roomID})
	l.mu.Unlock()
}

// DropRoom evicts every entry for a room once it finishes.
func (l *fixedWindow) DropRoom(roomID uint64) {
	l.mu.Lock()
	for k := range l.buckets {
		if k.roomID == roomID {
			delete(l.buckets, k)
		}
	}
	l.mu.Unlock()
}
