// Command sudokuserver runs the realtime co-op sudoku editor backend: it
// upgrades HTTP connections to websockets at /api/v1/realtime, spawns or
// hydrates the room each connection names, and periodically flushes
// dirty rooms to Postgres. Wiring here mirrors the teacher's main.go —
// parse flags, open the store, build the router, serve — widened with a
// persistence loop goroutine and a graceful shutdown path the teacher
// never had.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kalgynirae/sudoku/internal/config"
	"github.com/kalgynirae/sudoku/internal/registry"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/session"
	"github.com/kalgynirae/sudoku/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// server holds the dependencies an inbound connection needs resolved.
type server struct {
	reg    *registry.Registry
	logger *log.Logger
}

// serveRealtime implements the HTTP upgrade endpoint described in C7:
// GET /api/v1/realtime[/<room_id>]. A present room id must be 32 hex
// characters (either case; it is reported back in lowercase); an absent
// one mints a fresh room.
func (s *server) serveRealtime(w http.ResponseWriter, r *http.Request) {
	var idPtr *room.ID
	if raw, ok := mux.Vars(r)["room_id"]; ok && raw != "" {
		id, err := room.ParseID(raw)
		if err != nil {
			http.Error(w, "malformed room id", http.StatusBadRequest)
			return
		}
		idPtr = &id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade failed: %v", err)
		return
	}

	rm, id, err := s.reg.Attach(r.Context(), idPtr)
	if err != nil {
		s.logger.Printf("attach failed: %v", err)
		conn.WriteMessage(websocket.CloseMessage, []byte{})
		conn.Close()
		return
	}
	defer s.reg.Release(id)

	sess := session.New(conn, rm, s.logger)
	sess.Serve()
}

func main() {
	configPath := os.Getenv("SUDOKUSERVER_CONFIG")
	cfg, err := config.Load(configPath, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New(os.Stderr, "sudokuserver: ", log.LstdFlags)

	if cfg.DatabaseDSN == "" {
		logger.Fatal("database-dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal(err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Fatal(err)
	}

	reg := registry.New(st, cfg.FlushInterval, logger)

	// flushCtx governs only the periodic ticking of the flush loop, kept
	// independent of ctx so it can be stopped deterministically during
	// shutdown regardless of which of the two select branches below
	// triggered the shutdown.
	flushCtx, cancelFlushLoop := context.WithCancel(context.Background())
	defer cancelFlushLoop()

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		store.RunFlushLoop(flushCtx, st, reg, cfg.FlushInterval, logger)
	}()

	router := mux.NewRouter()
	srv := &server{reg: reg, logger: logger}
	router.HandleFunc("/api/v1/realtime", srv.serveRealtime)
	router.HandleFunc("/api/v1/realtime/{room_id}", srv.serveRealtime)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	failed := false
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			failed = true
		}
	case <-ctx.Done():
		logger.Print("shutting down")
	}

	// Quiesce every room first, before anything reads a snapshot to
	// persist or stops a single task — otherwise a mutation landing
	// between the flush pass and a room's Stop would be lost on an
	// otherwise clean shutdown. New attaches and mutating commands are
	// rejected from this point on; a batch already past a room's
	// quiescing check keeps running to completion.
	reg.QuiesceAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}

	cancelFlushLoop()
	<-flushDone

	// The final flush pass runs only now that every room is quiesced,
	// so the snapshot it persists is each room's true last state.
	store.FlushOnce(context.Background(), st, reg, logger)
	reg.StopAll()

	if failed {
		os.Exit(1)
	}
}
