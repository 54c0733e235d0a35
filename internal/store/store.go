// Package store is the durable side of C6: a thin key/value table mapping
// room id to an opaque persisted board blob, backed by Postgres via pgx.
// It is the generalization of the teacher's db.go — same pgxpool wiring
// and exec/query style (issued directly on the pool, without
// transactions), narrowed to the one table this
// service actually needs and widened to carry a CBOR-encoded board
// instead of a handful of relational columns.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalgynirae/sudoku/internal/board"
	"github.com/kalgynirae/sudoku/internal/room"
)

// Store is a pgxpool-backed implementation of registry.Store plus the
// Save half the persistence loop needs. Safe for concurrent use; the
// pool manages its own connection concurrency.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses dsn and establishes a connection pool. Callers should call
// EnsureSchema once before serving traffic, and Close on shutdown.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parsing dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the rooms table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			id    BYTEA PRIMARY KEY,
			board BYTEA NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("store: ensuring schema: %w", err)
	}
	return nil
}

// Load fetches and decodes the board stored for id. The second return
// value is false when no row exists for id, which the registry treats
// as "unknown to storage" rather than an error.
func (s *Store) Load(ctx context.Context, id room.ID) (board.Board, bool, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT board FROM rooms WHERE id = $1`, id[:]).Scan(&blob)
	if err != nil {
		if err == pgx.ErrNoRows {
			return board.Board{}, false, nil
		}
		return board.Board{}, false, fmt.Errorf("store: loading room %s: %w", id, err)
	}
	b, err := board.DecodeCBOR(blob)
	if err != nil {
		return board.Board{}, false, fmt.Errorf("store: decoding room %s: %w", id, err)
	}
	return b, true, nil
}

// Save upserts the board for id, overwriting whatever was there.
func (s *Store) Save(ctx context.Context, id room.ID, b board.Board) error {
	blob, err := b.EncodeCBOR()
	if err != nil {
		return fmt.Errorf("store: encoding room %s: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, board) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET board = EXCLUDED.board`,
		id[:], blob)
	if err != nil {
		return fmt.Errorf("store: saving room %s: %w", id, err)
	}
	return nil
}
