// Package session owns one websocket connection end to end: the inbound
// decode half that turns client frames into room commands, and the
// outbound encode half that turns room events into client frames. It is
// the generalization of the teacher's Client and its readPump/writePump
// goroutine pair, widened from a single chat broadcast to the full
// setBoardState/applyDiffs/updateCursor protocol.
package session

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalgynirae/sudoku/internal/api"
	"github.com/kalgynirae/sudoku/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // a full 81-square board comfortably fits well under this
	outboxSize     = 32
)

// state tracks where a session is in its lifecycle. It exists mostly for
// readability at the call sites below; it is only ever assigned, and
// nothing branches on its value.
type state int32

const (
	stateConnecting state = iota
	stateAwaitingInit
	stateAttached
	stateClosing
)

// Session pumps one socket against one room. Serve blocks until either
// side closes; the caller is expected to run it in its own goroutine per
// connection, exactly like the teacher's readPump/writePump pair.
type Session struct {
	conn   *websocket.Conn
	room   *room.Room
	logger *log.Logger

	outbox chan room.Event
	handle room.SessionHandle
	state  state
}

// New wraps conn around room. The room is expected to already exist
// (the registry resolves room id to *room.Room before a session is
// constructed); Session never spawns or looks up rooms itself.
func New(conn *websocket.Conn, r *room.Room, logger *log.Logger) *Session {
	return &Session{
		conn:   conn,
		room:   r,
		logger: logger,
		outbox: make(chan room.Event, outboxSize),
		state:  stateConnecting,
	}
}

// Serve attaches to the room, sends the init message, and then runs the
// inbound and outbound pumps until the connection or the room goes away.
// It always leaves the session detached and the socket closed.
func (s *Session) Serve() {
	s.state = stateAwaitingInit
	snap, err := s.room.Attach(s.outbox)
	if err != nil {
		s.conn.Close()
		return
	}
	s.handle = snap.Handle

	defer func() {
		s.state = stateClosing
		s.room.Detach(s.handle)
		s.conn.Close()
	}()

	initMsg, err := api.EncodeInit(snap.RoomID, snap.BoardState)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("session %d: failed to encode init message: %v", s.handle, err)
		}
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, initMsg); err != nil {
		return
	}
	s.state = stateAttached

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()
	s.readPump()
	// The inbound half has ended; detaching closes the outbox, which makes
	// writePump send a close frame and return instead of idling until its
	// next write fails.
	s.room.Detach(s.handle)
	<-done
}

// readPump decodes inbound frames and turns them into room commands. It
// tolerates malformed JSON and unknown message types by logging and
// discarding the frame, per the server's client-fault taxonomy: a bad
// frame never closes the socket on its own.
func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if s.logger != nil {
					s.logger.Printf("session %d: read error: %v", s.handle, err)
				}
			}
			return
		}
		if err := s.dispatch(raw); err != nil {
			if s.logger != nil {
				s.logger.Printf("session %d: discarding malformed frame: %v", s.handle, err)
			}
		}
	}
}

func (s *Session) dispatch(raw []byte) error {
	reqType, err := api.PeekRequestType(raw)
	if err != nil {
		return err
	}
	switch reqType {
	case api.ReqSetBoardState:
		b, err := api.DecodeSetBoardState(raw)
		if err != nil {
			return err
		}
		return ignoreStopped(s.room.ReplaceBoard(b))

	case api.ReqApplyDiffs:
		_, diffs, err := api.DecodeApplyDiffs(raw)
		if err != nil {
			return err
		}
		return ignoreStopped(s.room.ApplyBatch(s.handle, diffs))

	case api.ReqUpdateCursor:
		// The server never interprets cursor payloads: the raw client
		// frame is relayed to every other subscriber verbatim.
		return ignoreStopped(s.room.RelayCursor(s.handle, json.RawMessage(raw)))

	default:
		return &api.ErrMalformedMessage{Reason: "unknown message type " + string(reqType)}
	}
}

// ignoreStopped swallows room.ErrStopped: if the room has already shut
// down, readPump's caller will observe it via the outbox closing and
// exit on its own. There is nothing else useful to do with the error.
func ignoreStopped(err error) error {
	if errors.Is(err, room.ErrStopped) {
		return nil
	}
	return err
}

// writePump drains the room's outbox and writes each event to the
// socket as a JSON frame, plus a periodic ping to keep the connection
// alive and detect a dead peer. It returns when the outbox is closed
// (eviction or room shutdown) or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-s.outbox:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, err := encodeEvent(ev)
			if err != nil {
				if s.logger != nil {
					s.logger.Printf("session %d: failed to encode outbound event: %v", s.handle, err)
				}
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeEvent(ev room.Event) ([]byte, error) {
	switch e := ev.(type) {
	case room.PartialUpdate:
		return api.EncodePartialUpdate(e.ServerSyncID, e.Diffs)
	case room.FullUpdate:
		return api.EncodeFullUpdate(e.ServerSyncID, e.BoardState)
	case room.CursorRelay:
		return []byte(e.Raw), nil
	default:
		return nil, &api.ErrMalformedMessage{Reason: "unrecognized room event"}
	}
}
