package room

import (
	"encoding/json"

	"github.com/kalgynirae/sudoku/internal/board"
)

// SessionHandle uniquely identifies one attached subscriber within a room.
// It is assigned by the room on Attach and is only meaningful to that room.
type SessionHandle uint64

// Event is something a room task sends to a subscriber's outbox. The
// session layer turns these into wire envelopes; this package stays
// ignorant of the wire format.
type Event interface{}

// PartialUpdate is the normal broadcast: a diff batch was applied.
type PartialUpdate struct {
	ServerSyncID uint64
	Diffs        []board.Diff
}

// FullUpdate resyncs a client with the authoritative board, either because
// its batch was rejected or because the board was replaced wholesale.
type FullUpdate struct {
	ServerSyncID uint64
	BoardState   board.Board
}

// CursorRelay carries an opaque cursor payload from one session to be
// forwarded verbatim to every other subscriber.
type CursorRelay struct {
	Raw json.RawMessage
}

// InitSnapshot is returned from Attach: the state a newly joined session
// needs to construct its "init" message.
type InitSnapshot struct {
	Handle       SessionHandle
	RoomID       ID
	ServerSyncID uint64
	BoardState   board.Board
}

// SnapshotResult is returned to the persistence loop.
type SnapshotResult struct {
	BoardState   board.Board
	Dirty        bool
	ServerSyncID uint64
}
