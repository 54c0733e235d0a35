// Package api defines the JSON wire schema exchanged between sessions and
// clients, and the handful of pure encode/decode helpers session.Session
// uses to speak it. It depends on board and room but is never depended on
// by either, keeping the room task ignorant of wire format entirely.
package api

import (
	"encoding/json"
	"fmt"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
)

// ErrMalformedMessage reports a client frame that could not be decoded:
// undecodable JSON, an unknown top-level type, or a wrong field shape.
// Per the error taxonomy, this is always a client fault handled by
// logging and discarding the frame — the session is kept alive.
type ErrMalformedMessage struct {
	Reason string
}

func (e *ErrMalformedMessage) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// RequestType is the "type" discriminator of a client->server envelope.
type RequestType string

const (
	ReqSetBoardState RequestType = "setBoardState"
	ReqApplyDiffs    RequestType = "applyDiffs"
	ReqUpdateCursor  RequestType = "updateCursor"
)

type envelope struct {
	Type RequestType `json:"type"`
}

// PeekRequestType inspects only the "type" field of a client frame,
// without requiring the rest of the envelope to be well-formed yet.
func PeekRequestType(raw []byte) (RequestType, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &ErrMalformedMessage{Reason: err.Error()}
	}
	if env.Type == "" {
		return "", &ErrMalformedMessage{Reason: "missing \"type\" field"}
	}
	return env.Type, nil
}

type setBoardStateRequest struct {
	BoardState board.Board `json:"boardState"`
}

// DecodeSetBoardState parses a setBoardState request body.
func DecodeSetBoardState(raw []byte) (board.Board, error) {
	var req setBoardStateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return board.Board{}, &ErrMalformedMessage{Reason: err.Error()}
	}
	return req.BoardState, nil
}

type applyDiffsRequest struct {
	SyncID uint32       `json:"syncId"`
	Diffs  []board.Diff `json:"diffs"`
}

// DecodeApplyDiffs parses an applyDiffs request body. The returned syncId
// is the client's own namespace: the server never uses it for ordering,
// and the session discards it (partialUpdate carries the server's own
// sync id instead).
func DecodeApplyDiffs(raw []byte) (syncID uint32, diffs []board.Diff, err error) {
	var req applyDiffsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return 0, nil, &ErrMalformedMessage{Reason: err.Error()}
	}
	return req.SyncID, req.Diffs, nil
}

type initMessage struct {
	Type       string      `json:"type"`
	RoomID     string      `json:"roomId"`
	BoardState board.Board `json:"boardState"`
}

// EncodeInit builds the "init" message sent exactly once, immediately
// after a session attaches to a room.
func EncodeInit(roomID room.ID, boardState board.Board) ([]byte, error) {
	return json.Marshal(initMessage{Type: "init", RoomID: roomID.String(), BoardState: boardState})
}

type partialUpdateMessage struct {
	Type   string       `json:"type"`
	SyncID uint64       `json:"syncId"`
	Diffs  []board.Diff `json:"diffs"`
}

// EncodePartialUpdate builds a normal broadcast message.
func EncodePartialUpdate(syncID uint64, diffs []board.Diff) ([]byte, error) {
	return json.Marshal(partialUpdateMessage{Type: "partialUpdate", SyncID: syncID, Diffs: diffs})
}

type fullUpdateMessage struct {
	Type       string      `json:"type"`
	SyncID     uint64      `json:"syncId"`
	BoardState board.Board `json:"boardState"`
}

// EncodeFullUpdate builds a resync message, sent after a rejected batch
// or in response to setBoardState.
func EncodeFullUpdate(syncID uint64, boardState board.Board) ([]byte, error) {
	return json.Marshal(fullUpdateMessage{Type: "fullUpdate", SyncID: syncID, BoardState: boardState})
}
