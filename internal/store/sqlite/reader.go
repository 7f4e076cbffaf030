package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-setups/internal/model"
)

// Reader provides read-only access for replay and the setup history API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a reader can be opened before the first write.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars returns 1m bars in [from, to) ordered by timestamp then symbol.
// An empty symbol selects every symbol; a zero to means no upper bound.
func (r *Reader) ReadBars(symbol string, from, to time.Time) ([]model.Bar, error) {
	upper := int64(1<<63 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume, vwap
		FROM bars_1m
		WHERE (? = '' OR symbol = ?) AND ts >= ? AND ts < ?
		ORDER BY ts ASC, symbol ASC
	`, symbol, symbol, from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_1m: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var ts int64
		var vwap sql.NullFloat64
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &vwap); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_1m: %w", err)
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		b.VWAP = vwap.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadSetups returns journaled setups created at or after since, newest
// first. An empty symbol selects every symbol; limit <= 0 means no limit.
func (r *Reader) ReadSetups(symbol string, since time.Time, limit int) ([]model.Setup, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(`
		SELECT data FROM setups
		WHERE (? = '' OR symbol = ?) AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, symbol, symbol, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query setups: %w", err)
	}
	defer rows.Close()

	var out []model.Setup
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan setups: %w", err)
		}
		var s model.Setup
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("unmarshal setup: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadEvents returns the journaled events of one setup, oldest first.
func (r *Reader) ReadEvents(setupID string) ([]model.Event, error) {
	rows, err := r.db.Query(`
		SELECT data FROM setup_events WHERE setup_id = ? ORDER BY ts ASC, rowid ASC
	`, setupID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query setup_events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan setup_events: %w", err)
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
