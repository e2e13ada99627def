// Package sqlite implements the relational event sink: batches insert into
// an events table within one transaction per batch.
//
// With Background set, inserts run on a dedicated goroutine so a slow disk
// never stalls the runtime flusher; the hand-off copies the batch, and no
// core mutex is held across the insert.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS events (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp_ns INTEGER NOT NULL,
  dev_id       INTEGER NOT NULL,
  event_type   INTEGER NOT NULL,
  severity     INTEGER NOT NULL,
  aux          INTEGER,
  layer        INTEGER,
  role         TEXT,
  mission      TEXT
);`

const insertSQL = `
INSERT INTO events (timestamp_ns, dev_id, event_type, severity, aux, layer, role, mission)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Config configures the SQLite sink.
type Config struct {
	// Path is the database file path, or ":memory:" (required).
	Path string
	// Background moves inserts onto a dedicated goroutine.
	Background bool
	// QueueDepth bounds the background hand-off (default 64 batches).
	// Batches beyond the bound are counted as failures and discarded.
	QueueDepth int
}

// Sink inserts event batches into a SQLite events table.
type Sink struct {
	db       *sql.DB
	failures atomic.Uint64

	queue chan []types.Event
	wg    sync.WaitGroup
}

// New opens (creating if needed) the events database.
func New(cfg Config) (*Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite sink requires a path")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open %s: %w", cfg.Path, err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite sink: create events table: %w", err)
	}

	s := &Sink{db: db}
	if cfg.Background {
		depth := cfg.QueueDepth
		if depth <= 0 {
			depth = 64
		}
		s.queue = make(chan []types.Event, depth)
		s.wg.Add(1)
		go s.insertLoop()
	}
	return s, nil
}

// Write implements the sink contract. In background mode the batch is copied
// and handed off; otherwise it inserts inline. Failures are absorbed.
func (s *Sink) Write(batch []types.Event) {
	if s.queue != nil {
		owned := make([]types.Event, len(batch))
		copy(owned, batch)
		select {
		case s.queue <- owned:
		default:
			s.failures.Add(1)
		}
		return
	}
	if err := s.insert(batch); err != nil {
		s.failures.Add(1)
	}
}

func (s *Sink) insertLoop() {
	defer s.wg.Done()
	for batch := range s.queue {
		if err := s.insert(batch); err != nil {
			s.failures.Add(1)
		}
	}
}

// insert writes one batch inside a single transaction.
func (s *Sink) insert(batch []types.Event) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range batch {
		ev := &batch[i]
		if _, err := stmt.Exec(
			int64(ev.TsNs),
			int64(ev.DevID),
			int64(ev.Type),
			int64(ev.Severity),
			int64(ev.Aux),
			int64(ev.Layer),
			ev.RoleString(),
			ev.MissionString(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Func adapts the sink to the runtime sink signature.
func (s *Sink) Func() rt.SinkFunc { return s.Write }

// Failures returns the count of insert failures absorbed so far.
func (s *Sink) Failures() uint64 { return s.failures.Load() }

// Close drains the background queue, if any, and closes the database.
func (s *Sink) Close() error {
	if s.queue != nil {
		close(s.queue)
		s.wg.Wait()
		s.queue = nil
	}
	return s.db.Close()
}
