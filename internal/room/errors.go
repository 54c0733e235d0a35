package room

import "errors"

// ErrStopped is returned by operations attempted against a room whose
// task has exited, and by Attach, ApplyBatch, ReplaceBoard and
// RelayCursor once the room is quiescing. Snapshot and
// ClearDirtyIfUnchanged keep working on a quiescing room; Detach never
// returns it.
var ErrStopped = errors.New("room: task has stopped accepting commands")
