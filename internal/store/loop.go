package store

import (
	"context"
	"log"
	"time"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
)

// Registry is the slice of registry.Registry the flush loop depends on.
// Declared here rather than imported so store never needs to import
// registry; registry declares its own Store interface in turn, so
// neither package imports the other and cmd/sudokuserver wires the two
// together.
type Registry interface {
	ForEach(fn func(id room.ID, r *room.Room))
	ReapTick(now time.Time)
}

// Saver is the write half of Store, narrowed so the flush loop can be
// tested against a fake without a real database.
type Saver interface {
	Save(ctx context.Context, id room.ID, b board.Board) error
}

// RunFlushLoop drives the periodic half of C6: every interval it visits
// every resident room, persists the ones marked dirty, and then lets reg
// reap rooms that have been idle long enough. It blocks until ctx is
// cancelled and then returns without flushing — the shutdown flush pass
// is a separate, explicit step (FlushOnce) the caller runs only after
// quiescing every room, so nothing can mutate a board's state between
// the snapshot FlushOnce reads and the room tasks actually stopping.
func RunFlushLoop(ctx context.Context, st Saver, reg Registry, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			flushPass(ctx, st, reg, logger)
			reg.ReapTick(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// FlushOnce runs a single flush pass outside the regular ticker cadence.
// Callers use this for the graceful-shutdown flush, after every room has
// already been quiesced so the snapshot it saves is final.
func FlushOnce(ctx context.Context, st Saver, reg Registry, logger *log.Logger) {
	flushPass(ctx, st, reg, logger)
}

func flushPass(ctx context.Context, st Saver, reg Registry, logger *log.Logger) {
	reg.ForEach(func(id room.ID, r *room.Room) {
		snap, err := r.Snapshot()
		if err != nil {
			return
		}
		if !snap.Dirty {
			return
		}
		if err := st.Save(ctx, id, snap.BoardState); err != nil {
			if logger != nil {
				logger.Printf("store: flush of room %s failed, will retry next cycle: %v", id, err)
			}
			return
		}
		if err := r.ClearDirtyIfUnchanged(snap.ServerSyncID); err != nil && logger != nil {
			logger.Printf("store: clearing dirty flag for room %s: %v", id, err)
		}
	})
}
