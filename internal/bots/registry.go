package bots

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minefleet/minefleet/internal/protocol"
)

// entry is the registry record for one bot identity. All lifecycle mutations
// for the identity serialize on mu; distinct identities proceed in parallel.
type entry struct {
	mu sync.Mutex

	config   BotConfig
	status   Status
	health   float64
	food     float64
	position Position
	lastErr  string

	// conn is the live protocol connection, nil in every status except
	// online and the tail of connecting (dial completed, spawn pending).
	conn protocol.Conn

	// gen invalidates in-flight asynchronous work (dials, session loops,
	// delayed commands). Every transition that supersedes such work bumps
	// it; stale goroutines observe the mismatch and stand down.
	gen uint64

	// dialing marks a dial in flight so concurrent Connect calls are
	// rejected before a conn exists.
	dialing bool

	// timer is the pending reconnect timer, if any. timerGen invalidates a
	// concurrently firing callback after cancellation.
	timer    *time.Timer
	timerGen uint64

	// removed marks the entry as permanently deleted so late callbacks
	// holding a stale pointer do nothing.
	removed bool

	// published is the status copy served to read-mostly queries and
	// snapshots without touching mu.
	published atomic.Pointer[BotStatus]
}

// publishLocked refreshes the lock-free status copy. Callers hold e.mu.
func (e *entry) publishLocked() BotStatus {
	st := BotStatus{
		ID:       e.config.ID,
		Nickname: e.config.Nickname,
		ServerIP: e.config.Host,
		Status:   e.status,
		Health:   e.health,
		Food:     e.food,
		Position: e.position,
		Error:    e.lastErr,
	}
	e.published.Store(&st)
	return st
}

// cancelReconnectLocked stops any pending reconnect timer and invalidates a
// callback that may already be firing. Callers hold e.mu.
func (e *entry) cancelReconnectLocked() {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// registry is the keyed store of all known bot entries. The outer lock
// guards structural insert/remove only; per-entry state is guarded by the
// entry's own mutex.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// getOrCreate returns the entry for id, creating a blank one if absent
func (r *registry) getOrCreate(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &entry{}
	r.entries[id] = e
	return e
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// list returns all entries ordered by bot id for deterministic snapshots
func (r *registry) list() []*entry {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id])
	}
	r.mu.RUnlock()
	return out
}
