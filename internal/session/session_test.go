package session

import (
	"encoding/json"
	"testing"

	"github.com/kalgynirae/sudoku/internal/api"
	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
)

func digitPtr(v uint8) *board.Digit {
	d, err := board.ParseDigit(v)
	if err != nil {
		panic(err)
	}
	return &d
}

func newAttachedSession(t *testing.T) (*Session, *room.Room, chan room.Event) {
	t.Helper()
	r := room.New(room.RandomID(), board.New(), false, nil)
	outbox := make(chan room.Event, 8)
	snap, err := r.Attach(outbox)
	if err != nil {
		t.Fatal(err)
	}
	s := &Session{room: r, outbox: outbox, handle: snap.Handle, state: stateAttached}
	return s, r, outbox
}

func TestDispatchApplyDiffs(t *testing.T) {
	s, _, outbox := newAttachedSession(t)
	frame := []byte(`{"type":"applyDiffs","syncId":1,"diffs":[{"squares":[0],"operation":{"fn":"setNumber","digit":5}}]}`)
	if err := s.dispatch(frame); err != nil {
		t.Fatal(err)
	}
	ev := <-outbox
	pu, ok := ev.(room.PartialUpdate)
	if !ok {
		t.Fatalf("expected PartialUpdate, got %T", ev)
	}
	if pu.ServerSyncID != 1 {
		t.Fatalf("expected sync id 1, got %d", pu.ServerSyncID)
	}
}

func TestDispatchSetBoardState(t *testing.T) {
	s, _, outbox := newAttachedSession(t)
	b := board.New()
	b.Squares[3].Number = digitPtr(7)
	payload, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	frame := []byte(`{"type":"setBoardState","boardState":` + string(payload) + `}`)
	if err := s.dispatch(frame); err != nil {
		t.Fatal(err)
	}
	ev := <-outbox
	fu, ok := ev.(room.FullUpdate)
	if !ok {
		t.Fatalf("expected FullUpdate, got %T", ev)
	}
	if *fu.BoardState.Squares[3].Number != 7 {
		t.Fatalf("expected replaced board to be reflected")
	}
}

func TestDispatchUpdateCursorRelayedVerbatim(t *testing.T) {
	s, r, _ := newAttachedSession(t)
	other := make(chan room.Event, 8)
	if _, err := r.Attach(other); err != nil {
		t.Fatal(err)
	}

	frame := []byte(`{"type":"updateCursor","selection":[1,2,3]}`)
	if err := s.dispatch(frame); err != nil {
		t.Fatal(err)
	}

	ev := <-other
	relay, ok := ev.(room.CursorRelay)
	if !ok {
		t.Fatalf("expected CursorRelay, got %T", ev)
	}
	if string(relay.Raw) != string(frame) {
		t.Fatalf("expected verbatim relay, got %s", relay.Raw)
	}
}

func TestDispatchMalformedJSONReturnsError(t *testing.T) {
	s, _, _ := newAttachedSession(t)
	if err := s.dispatch([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for undecodable JSON")
	}
}

func TestDispatchUnknownTypeReturnsMalformed(t *testing.T) {
	s, _, _ := newAttachedSession(t)
	err := s.dispatch([]byte(`{"type":"doSomethingElse"}`))
	if err == nil {
		t.Fatal("expected an error for an unknown message type")
	}
	var target *api.ErrMalformedMessage
	if !asErrMalformed(err, &target) {
		t.Fatalf("expected *api.ErrMalformedMessage, got %T", err)
	}
}

func asErrMalformed(err error, target **api.ErrMalformedMessage) bool {
	m, ok := err.(*api.ErrMalformedMessage)
	if !ok {
		return false
	}
	*target = m
	return true
}

func TestEncodeEventCursorRelayPassesRawThrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"updateCursor","selection":[1]}`)
	frame, err := encodeEvent(room.CursorRelay{Raw: raw})
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != string(raw) {
		t.Fatalf("expected passthrough, got %s", frame)
	}
}
