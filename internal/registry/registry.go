// Package registry is the process-wide room broker: it maps a room id to
// a running room task, spawning one on first attach and reaping it once
// the last subscriber has left and a flush cycle has persisted its final
// state. It is the generalization of the teacher's Hub, widened from a
// bare join/leave/broadcast table into a spawn-on-demand, storage-backed
// broker — the lock here protects only the find-or-spawn step, exactly as
// the teacher's mutex protects only the room-set lookup.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
)

// Store is the persistence dependency the registry needs: loading a
// board on spawn and nothing else. internal/store.Store satisfies this;
// tests substitute an in-memory fake.
type Store interface {
	Load(ctx context.Context, id room.ID) (board.Board, bool, error)
}

type entry struct {
	room     *room.Room
	refcount int
	// emptySince is the moment refcount last dropped to zero. The zero
	// Time means the room currently has at least one subscriber.
	emptySince time.Time
}

// alive reports whether the room's task is still running. A room whose
// task exited — gracefully via Stop, or by a recovered panic — must
// never be handed out again; the registry has to notice and respawn.
func (e *entry) alive() bool {
	select {
	case <-e.room.Done():
		return false
	default:
		return true
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu            sync.Mutex
	rooms         map[room.ID]*entry
	store         Store
	flushInterval time.Duration
	logger        *log.Logger
}

// New builds an empty registry. flushInterval must match the persistence
// loop's flush period: it is also the minimum residency time a room gets
// after its last subscriber detaches, per the reaping contract.
func New(store Store, flushInterval time.Duration, logger *log.Logger) *Registry {
	return &Registry{
		rooms:         make(map[room.ID]*entry),
		store:         store,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Attach resolves id to a running room, spawning or hydrating one if
// necessary, and increments its subscriber refcount. Pass id == nil to
// mint a fresh random room id for a client that connected without one.
// The caller must call Release(returned id) exactly once, when the
// session that attached eventually detaches.
//
// A room whose task has died — Stop, or a recovered panic — is never
// handed out: its stale entry is dropped and the id is respawned via the
// normal load-from-storage path, the same as if it had been reaped and
// a client reconnected afterward.
func (reg *Registry) Attach(ctx context.Context, id *room.ID) (*room.Room, room.ID, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if id == nil {
		fresh := room.RandomID()
		r := room.New(fresh, board.New(), false, reg.logger)
		reg.rooms[fresh] = &entry{room: r, refcount: 1}
		return r, fresh, nil
	}

	if e, ok := reg.rooms[*id]; ok {
		if e.alive() {
			e.refcount++
			e.emptySince = time.Time{}
			return e.room, *id, nil
		}
		if reg.logger != nil {
			cause := "stopped"
			if e.room.Crashed() {
				cause = "crashed"
			}
			reg.logger.Printf("registry: room %s's task had %s, respawning", id, cause)
		}
		delete(reg.rooms, *id)
	}

	// Spawn race: we hold the lock across the storage read, so a second
	// concurrent attach for the same unknown id blocks here rather than
	// starting a duplicate load — it simply reuses the entry we insert
	// below once it acquires the lock.
	return reg.spawnLocked(ctx, *id)
}

// spawnLocked loads (or creates) the board for id and starts its room
// task. Callers must hold reg.mu.
func (reg *Registry) spawnLocked(ctx context.Context, id room.ID) (*room.Room, room.ID, error) {
	initial, found, err := reg.store.Load(ctx, id)
	if err != nil {
		return nil, room.ID{}, fmt.Errorf("registry: loading room %s: %w", id, err)
	}
	if !found {
		initial = board.New()
	}
	r := room.New(id, initial, found, reg.logger)
	reg.rooms[id] = &entry{room: r, refcount: 1}
	return r, id, nil
}

// Release decrements the refcount for id. When it reaches zero the room
// becomes eligible for reaping, but stays resident until ReapTick
// observes it has been empty for at least one full flush cycle and its
// last state has been persisted.
func (reg *Registry) Release(id room.ID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	e, ok := reg.rooms[id]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		e.refcount = 0
		e.emptySince = time.Now()
	}
}

// ForEach calls fn for every currently resident room. Used by the
// persistence loop's flush pass; fn must not call back into the
// registry.
func (reg *Registry) ForEach(fn func(id room.ID, r *room.Room)) {
	reg.mu.Lock()
	snapshot := make([]struct {
		id room.ID
		r  *room.Room
	}, 0, len(reg.rooms))
	for id, e := range reg.rooms {
		snapshot = append(snapshot, struct {
			id room.ID
			r  *room.Room
		}{id, e.room})
	}
	reg.mu.Unlock()

	for _, s := range snapshot {
		fn(s.id, s.r)
	}
}

// ReapTick removes rooms that have had zero subscribers for at least one
// flush cycle and whose board is no longer dirty (i.e. the persistence
// loop's most recent flush pass already wrote their final state). Call
// this once per flush tick, after the flush pass completes.
//
// It also removes any entry whose task has already died — a dead room
// can never become clean again (Snapshot permanently returns
// ErrStopped once the task exits), so waiting for that would brick the
// id forever. Dead entries are dropped unconditionally, independent of
// refcount: any session still holding a handle to a dead room already
// had its outbox closed by the room's own panic recovery and will
// detach on its own.
func (reg *Registry) ReapTick(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for id, e := range reg.rooms {
		if !e.alive() {
			delete(reg.rooms, id)
			if reg.logger != nil {
				cause := "stopped"
				if e.room.Crashed() {
					cause = "crashed"
				}
				reg.logger.Printf("registry: dropped %s room %s", cause, id)
			}
			continue
		}
		if e.refcount > 0 || e.emptySince.IsZero() {
			continue
		}
		if now.Sub(e.emptySince) < reg.flushInterval {
			continue
		}
		snap, err := e.room.Snapshot()
		if err != nil || snap.Dirty {
			continue
		}
		e.room.Stop()
		delete(reg.rooms, id)
		if reg.logger != nil {
			reg.logger.Printf("registry: reaped idle room %s", id)
		}
	}
}

// QuiesceAll stops every resident room from accepting new attaches or
// board mutations, without tearing any of them down. This is the first
// step of a graceful shutdown: it must happen before the final flush
// pass runs, so nothing mutates a room's board after that pass has
// already read and persisted its snapshot. Any command already past a
// room's quiescing check and in flight is still applied normally —
// QuiesceAll only blocks new commands from being accepted.
func (reg *Registry) QuiesceAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, e := range reg.rooms {
		e.room.Quiesce()
	}
}

// StopAll tears down every resident room task. This is the last step of
// a graceful shutdown, run only after QuiesceAll and a final flush pass
// have both completed, so every room's last mutation is guaranteed to
// have already been persisted before its task exits.
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for id, e := range reg.rooms {
		e.room.Stop()
		delete(reg.rooms, id)
	}
}

// Len reports the number of resident rooms. Intended for tests and
// metrics, not for control flow.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
