package room

import (
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/kalgynirae/sudoku/internal/board"
)

// Room is one room's state machine: the authoritative board, the server
// sync counter, and the subscriber table, all owned exclusively by a
// single goroutine running run(). Every exported method sends a command
// across a channel rather than touching state directly — the owned-mailbox
// pattern that makes diff ordering trivially total without ever locking
// the board.
type Room struct {
	id       ID
	commands chan any
	stopped  chan struct{}

	quiescing atomic.Bool
	crashed   atomic.Bool

	logger *log.Logger
}

type attachCmd struct {
	outbox chan Event
	reply  chan InitSnapshot
}

type detachCmd struct {
	handle SessionHandle
	done   chan struct{}
}

type applyBatchCmd struct {
	origin SessionHandle
	diffs  []board.Diff
}

type replaceBoardCmd struct {
	board board.Board
}

type relayCursorCmd struct {
	origin SessionHandle
	raw    json.RawMessage
}

type snapshotCmd struct {
	reply chan SnapshotResult
}

type clearDirtyCmd struct {
	observedSyncID uint64
}

type stopCmd struct {
	done chan struct{}
}

// New starts a room task for id, seeded with initial (either a freshly
// created empty board or one hydrated from storage), and returns a handle
// to it. The caller is responsible for eventually calling Stop.
//
// hydrated must be true when initial came from storage unchanged, and
// false when it's a brand new empty board: it seeds the dirty flag,
// per the invariant that dirty tracks whether the in-memory board
// differs from the most recently persisted snapshot. A freshly loaded
// board that hasn't been touched yet is not dirty; a brand new room
// with nothing persisted for it yet is.
func New(id ID, initial board.Board, hydrated bool, logger *log.Logger) *Room {
	r := &Room{
		id:       id,
		commands: make(chan any),
		stopped:  make(chan struct{}),
		logger:   logger,
	}
	go r.run(initial, !hydrated)
	return r
}

func (r *Room) ID() ID { return r.id }

// Done is closed once the room's task has exited, whether by a graceful
// Stop or by a recovered panic.
func (r *Room) Done() <-chan struct{} { return r.stopped }

// Crashed reports whether the task exited because of a recovered panic
// rather than a graceful Stop. Only meaningful after Done is closed.
func (r *Room) Crashed() bool { return r.crashed.Load() }

// Quiesce stops the room from accepting new attaches or board mutations,
// without tearing down existing subscribers. Used during shutdown so a
// final flush pass can run against a stable board.
func (r *Room) Quiesce() { r.quiescing.Store(true) }

func (r *Room) send(cmd any) error {
	select {
	case r.commands <- cmd:
		return nil
	case <-r.stopped:
		return ErrStopped
	}
}

// Attach adds outbox to the subscriber table and returns the current
// board and server sync id so the caller can build an "init" message.
func (r *Room) Attach(outbox chan Event) (InitSnapshot, error) {
	if r.quiescing.Load() {
		return InitSnapshot{}, ErrStopped
	}
	reply := make(chan InitSnapshot, 1)
	if err := r.send(attachCmd{outbox: outbox, reply: reply}); err != nil {
		return InitSnapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.stopped:
		return InitSnapshot{}, ErrStopped
	}
}

// Detach removes handle from the subscriber table. Safe to call more than
// once or after the room has already stopped.
func (r *Room) Detach(handle SessionHandle) error {
	done := make(chan struct{})
	if err := r.send(detachCmd{handle: handle, done: done}); err != nil {
		return nil
	}
	select {
	case <-done:
	case <-r.stopped:
	}
	return nil
}

// ApplyBatch validates and applies diffs on behalf of origin. Success or
// failure is reported asynchronously via the subscribers' outboxes, per
// the apply_batch protocol: a full broadcast on success, a fullUpdate to
// origin alone on rejection.
func (r *Room) ApplyBatch(origin SessionHandle, diffs []board.Diff) error {
	if r.quiescing.Load() {
		return ErrStopped
	}
	return r.send(applyBatchCmd{origin: origin, diffs: diffs})
}

// ReplaceBoard authoritatively overwrites the board (setBoardState) and
// broadcasts a fullUpdate to every subscriber.
func (r *Room) ReplaceBoard(b board.Board) error {
	if r.quiescing.Load() {
		return ErrStopped
	}
	return r.send(replaceBoardCmd{board: b})
}

// RelayCursor forwards an opaque cursor payload to every subscriber other
// than origin. It never touches the board and never bumps the sync id.
func (r *Room) RelayCursor(origin SessionHandle, raw json.RawMessage) error {
	if r.quiescing.Load() {
		return ErrStopped
	}
	return r.send(relayCursorCmd{origin: origin, raw: raw})
}

// Snapshot returns the current board, whether it is dirty, and the sync
// id it was observed at, for the persistence loop.
func (r *Room) Snapshot() (SnapshotResult, error) {
	reply := make(chan SnapshotResult, 1)
	if err := r.send(snapshotCmd{reply: reply}); err != nil {
		return SnapshotResult{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.stopped:
		return SnapshotResult{}, ErrStopped
	}
}

// ClearDirtyIfUnchanged clears the dirty flag, but only if the room's
// sync id still matches observedSyncID — i.e. nothing mutated the board
// between the snapshot that was just persisted and now. If something did,
// the dirty flag is left set so the next flush cycle picks up the change.
func (r *Room) ClearDirtyIfUnchanged(observedSyncID uint64) error {
	return r.send(clearDirtyCmd{observedSyncID: observedSyncID})
}

// Stop tears down every subscriber's outbox (forcing their sessions to
// close) and terminates the room's task. Idempotent.
func (r *Room) Stop() {
	done := make(chan struct{})
	select {
	case r.commands <- stopCmd{done: done}:
		<-done
	case <-r.stopped:
	}
}

func trySend(subscribers map[SessionHandle]chan Event, handle SessionHandle, ev Event) {
	out, ok := subscribers[handle]
	if !ok {
		return
	}
	select {
	case out <- ev:
	default:
		// slow consumer: evict rather than block the room task.
		delete(subscribers, handle)
		close(out)
	}
}

func broadcastToAll(subscribers map[SessionHandle]chan Event, ev Event) {
	for h := range subscribers {
		trySend(subscribers, h, ev)
	}
}

func (r *Room) run(initial board.Board, startDirty bool) {
	current := initial
	var serverSyncID uint64
	dirty := startDirty
	subscribers := make(map[SessionHandle]chan Event)
	var nextHandle SessionHandle

	defer func() {
		if rec := recover(); rec != nil {
			r.crashed.Store(true)
			if r.logger != nil {
				r.logger.Printf("room %s: recovered from panic, disconnecting %d subscribers: %v", r.id, len(subscribers), rec)
			}
		}
		for h, out := range subscribers {
			delete(subscribers, h)
			close(out)
		}
		close(r.stopped)
	}()

	for cmd := range r.commands {
		switch c := cmd.(type) {
		case attachCmd:
			nextHandle++
			handle := nextHandle
			subscribers[handle] = c.outbox
			c.reply <- InitSnapshot{
				Handle:       handle,
				RoomID:       r.id,
				ServerSyncID: serverSyncID,
				BoardState:   current.Clone(),
			}

		case detachCmd:
			if out, ok := subscribers[c.handle]; ok {
				delete(subscribers, c.handle)
				close(out)
			}
			close(c.done)

		case applyBatchCmd:
			working := current.Clone()
			if err := working.ApplyBatch(c.diffs); err != nil {
				trySend(subscribers, c.origin, FullUpdate{
					ServerSyncID: serverSyncID,
					BoardState:   current.Clone(),
				})
				continue
			}
			current = working
			serverSyncID++
			dirty = true
			broadcastToAll(subscribers, PartialUpdate{
				ServerSyncID: serverSyncID,
				Diffs:        c.diffs,
			})

		case replaceBoardCmd:
			current = c.board.Clone()
			serverSyncID++
			dirty = true
			broadcastToAll(subscribers, FullUpdate{
				ServerSyncID: serverSyncID,
				BoardState:   current.Clone(),
			})

		case relayCursorCmd:
			for h, out := range subscribers {
				if h == c.origin {
					continue
				}
				select {
				case out <- CursorRelay{Raw: c.raw}:
				default:
					delete(subscribers, h)
					close(out)
				}
			}

		case snapshotCmd:
			c.reply <- SnapshotResult{
				BoardState:   current.Clone(),
				Dirty:        dirty,
				ServerSyncID: serverSyncID,
			}

		case clearDirtyCmd:
			if serverSyncID == c.observedSyncID {
				dirty = false
			}

		case stopCmd:
			for h, out := range subscribers {
				delete(subscribers, h)
				close(out)
			}
			close(c.done)
			return
		}
	}
}
