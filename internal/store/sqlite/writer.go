// Package sqlite journals setups and their lifecycle events and archives
// 1-minute bars for replay.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-setups/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath        string // path to the database file, e.g. "data/setups.db"
	BatchSize     int
	FlushInterval time.Duration
}

// Writer is a single-connection SQLite writer with transaction batching.
// Run and RunBars may be used concurrently; the pool serializes them.
type Writer struct {
	db         *sql.DB
	batchSize  int
	flushDelay time.Duration

	// Callbacks (optional)
	OnCommit func(rows int, took time.Duration)
	OnError  func(err error)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	w := &Writer{db: db, batchSize: cfg.BatchSize, flushDelay: cfg.FlushInterval}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.flushDelay <= 0 {
		w.flushDelay = defaultFlushDelay
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return w, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_1m (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL    NOT NULL,
			vwap    REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS setups (
			id          TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			type        TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			status      TEXT    NOT NULL,
			entry       REAL    NOT NULL,
			stop        REAL    NOT NULL,
			score       INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			last_update INTEGER NOT NULL,
			data        TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_setups_symbol_created ON setups (symbol, created_at);

		CREATE TABLE IF NOT EXISTS setup_events (
			id           TEXT    PRIMARY KEY,
			setup_id     TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			price        REAL,
			target_index INTEGER,
			data         TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_setup ON setup_events (setup_id, ts);
	`)
	return err
}

// Run journals events: each event is stored and its setup upserted with the
// state the event carries. Flushes every batch size events or every flush
// interval, whichever first. Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Event) {
	runBatched(ctx, w, ch, "events", w.insertEvents)
}

// RunBars archives 1m bars with the same batching as Run.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.Bar) {
	runBatched(ctx, w, barCh, "bars", w.insertBars)
}

func runBatched[T any](ctx context.Context, w *Writer, ch <-chan T, what string, insert func([]T) error) {
	batch := make([]T, 0, w.batchSize)
	timer := time.NewTimer(w.flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := insert(batch); err != nil {
			log.Printf("[sqlite] %s batch insert error: %v", what, err)
			if w.OnError != nil {
				w.OnError(err)
			}
		} else if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case v, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, v)
			if len(batch) >= w.batchSize {
				flush()
				timer.Reset(w.flushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(w.flushDelay)
		}
	}
}

// WriteEvents journals events synchronously.
func (w *Writer) WriteEvents(events []model.Event) error {
	return w.insertEvents(events)
}

// WriteBars archives bars synchronously.
func (w *Writer) WriteBars(bars []model.Bar) error {
	return w.insertBars(bars)
}

func (w *Writer) insertEvents(events []model.Event) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	upsert, err := tx.Prepare(`
		INSERT INTO setups (id, symbol, type, direction, status, entry, stop, score, created_at, last_update, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_update = excluded.last_update,
			data = excluded.data
		WHERE excluded.last_update >= setups.last_update
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer upsert.Close()

	insert, err := tx.Prepare(`
		INSERT OR IGNORE INTO setup_events (id, setup_id, type, ts, price, target_index, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer insert.Close()

	for i := range events {
		ev := &events[i]
		s := &ev.Setup
		data, err := json.Marshal(s)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal setup %s: %w", s.ID, err)
		}
		if _, err := upsert.Exec(s.ID, s.Symbol, string(s.Type), string(s.Direction), string(s.Status),
			s.EntryPrice, s.StopLoss, s.ConfluenceScore,
			s.CreatedAt.UnixMilli(), s.LastUpdate.UnixMilli(), string(data)); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := insert.Exec(ev.ID, s.ID, string(ev.Type), ev.Timestamp.UnixMilli(),
			ev.Price, ev.TargetIndex, string(ev.JSON())); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (w *Writer) insertBars(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars_1m (symbol, ts, open, high, low, close, volume, vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// DeleteSetupsBefore removes terminal setups (and their events) last updated
// before cutoff. Returns the number of setups removed.
func (w *Writer) DeleteSetupsBefore(cutoff time.Time) (int64, error) {
	tx, err := w.db.Begin()
	if err != nil {
		return 0, err
	}
	const terminal = `status IN ('CLOSED', 'DISMISSED') AND last_update < ?`
	if _, err := tx.Exec(`DELETE FROM setup_events WHERE setup_id IN (SELECT id FROM setups WHERE `+terminal+`)`, cutoff.UnixMilli()); err != nil {
		tx.Rollback()
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM setups WHERE `+terminal, cutoff.UnixMilli())
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
