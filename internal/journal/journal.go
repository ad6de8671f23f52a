// Package journal persists the trade history (submissions, fills,
// rejections, terminations) to a SQLite database so it survives log
// rotation and process restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"looptrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Event classifies a journal entry.
type Event string

const (
	EventSubmitted  Event = "submitted"
	EventFilled     Event = "filled"
	EventRejected   Event = "rejected"
	EventCanceled   Event = "canceled"
	EventTerminated Event = "terminated"
)

// Entry is one journaled trade event.
type Entry struct {
	ID            int64
	Time          time.Time
	Symbol        string
	Phase         domain.Phase
	Side          domain.Side
	Event         Event
	OrderID       string
	ClientOrderID string
	Price         *decimal.Decimal
	Detail        string
}

// Journal writes trade events to SQLite.
type Journal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	time            TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	phase           TEXT NOT NULL,
	side            TEXT NOT NULL,
	event           TEXT NOT NULL,
	order_id        TEXT,
	client_order_id TEXT,
	price           TEXT,
	detail          TEXT
);
CREATE INDEX IF NOT EXISTS idx_trade_events_symbol_time ON trade_events(symbol, time);
`

// Open opens (or creates) the journal database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one entry. A zero Time is filled with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	var price any
	if e.Price != nil {
		price = e.Price.String()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trade_events (time, symbol, phase, side, event, order_id, client_order_id, price, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.Format(time.RFC3339Nano), e.Symbol, string(e.Phase), string(e.Side),
		string(e.Event), e.OrderID, e.ClientOrderID, price, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Entries returns the most recent entries for a symbol, newest first, up to
// limit.
func (j *Journal) Entries(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, time, symbol, phase, side, event, order_id, client_order_id, price, detail
		FROM trade_events WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			ts       string
			price    sql.NullString
			orderID  sql.NullString
			clientID sql.NullString
			detail   sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Symbol, &e.Phase, &e.Side, &e.Event, &orderID, &clientID, &price, &detail); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", ts, err)
		}
		e.OrderID = orderID.String
		e.ClientOrderID = clientID.String
		e.Detail = detail.String
		if price.Valid {
			d, err := decimal.NewFromString(price.String)
			if err != nil {
				return nil, fmt.Errorf("parsing journal price %q: %w", price.String, err)
			}
			e.Price = &d
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
