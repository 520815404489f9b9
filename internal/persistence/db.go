package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/realm-market/internal/snapshot"
)

// SQLiteStore keeps the snapshot in normalized tables, fully replaced on
// every save.
type SQLiteStore struct {
	conn *sqlx.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &SQLiteStore{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *SQLiteStore) Close() error {
	return db.conn.Close()
}

func (db *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prices (
		region TEXT NOT NULL,
		commodity TEXT NOT NULL,
		current_price REAL NOT NULL,
		history_json TEXT NOT NULL,
		PRIMARY KEY (region, commodity)
	);

	CREATE TABLE IF NOT EXISTS last_events (
		region TEXT PRIMARY KEY,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS event_history (
		seq INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		region TEXT NOT NULL,
		description TEXT NOT NULL,
		effects_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS market_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type priceRow struct {
	Region       string  `db:"region"`
	Commodity    string  `db:"commodity"`
	CurrentPrice float64 `db:"current_price"`
	HistoryJSON  string  `db:"history_json"`
}

type lastEventRow struct {
	Region      string         `db:"region"`
	Description sql.NullString `db:"description"`
}

type eventRow struct {
	Seq         int    `db:"seq"`
	EventID     string `db:"event_id"`
	Timestamp   string `db:"timestamp"`
	Region      string `db:"region"`
	Description string `db:"description"`
	EffectsJSON string `db:"effects_json"`
}

// Save writes the whole snapshot in one transaction.
func (db *SQLiteStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"prices", "last_events", "event_history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := savePrices(ctx, tx, snap); err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	for region, desc := range snap.LastEvents {
		var d sql.NullString
		if desc != nil {
			d = sql.NullString{String: *desc, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO last_events (region, description) VALUES (?, ?)", region, d); err != nil {
			return fmt.Errorf("save last events: %w", err)
		}
	}
	if err := saveEvents(ctx, tx, snap.EventHistory); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO market_meta (key, value) VALUES ('day', ?)",
		strconv.FormatUint(snap.Day, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	return tx.Commit()
}

func savePrices(ctx context.Context, tx *sqlx.Tx, snap *snapshot.Snapshot) error {
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO prices
		(region, commodity, current_price, history_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for region, cells := range snap.Market {
		for commodity, pp := range cells {
			hist, err := json.Marshal(pp.History)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, region, commodity, pp.CurrentPrice, string(hist)); err != nil {
				return err
			}
		}
	}
	return nil
}

func saveEvents(ctx context.Context, tx *sqlx.Tx, events []snapshot.EventRecord) error {
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO event_history
		(seq, event_id, timestamp, region, description, effects_json) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range events {
		effects, err := json.Marshal(e.Effects)
		if err != nil {
			return err
		}
		ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, i, e.ID, ts, e.Region, e.Description, string(effects)); err != nil {
			return err
		}
	}
	return nil
}

// Load rebuilds the snapshot from the tables. A database that has never
// been saved to returns snapshot.ErrNotFound.
func (db *SQLiteStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	var dayStr string
	err := db.conn.GetContext(ctx, &dayStr, "SELECT value FROM market_meta WHERE key = 'day'")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	day, err := strconv.ParseUint(dayStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("load meta: day %q: %w", dayStr, err)
	}

	snap := &snapshot.Snapshot{
		Day:          day,
		Market:       make(map[string]map[string]snapshot.PricePoint),
		LastEvents:   make(map[string]*string),
		EventHistory: []snapshot.EventRecord{},
	}

	var prices []priceRow
	if err := db.conn.SelectContext(ctx, &prices,
		"SELECT region, commodity, current_price, history_json FROM prices"); err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	for _, p := range prices {
		var hist []float64
		if err := json.Unmarshal([]byte(p.HistoryJSON), &hist); err != nil {
			return nil, fmt.Errorf("load prices: %s/%s history: %w", p.Region, p.Commodity, err)
		}
		cells, ok := snap.Market[p.Region]
		if !ok {
			cells = make(map[string]snapshot.PricePoint)
			snap.Market[p.Region] = cells
		}
		cells[p.Commodity] = snapshot.PricePoint{CurrentPrice: p.CurrentPrice, History: hist}
	}

	var last []lastEventRow
	if err := db.conn.SelectContext(ctx, &last, "SELECT region, description FROM last_events"); err != nil {
		return nil, fmt.Errorf("load last events: %w", err)
	}
	for _, l := range last {
		if l.Description.Valid {
			d := l.Description.String
			snap.LastEvents[l.Region] = &d
		} else {
			snap.LastEvents[l.Region] = nil
		}
	}

	var events []eventRow
	if err := db.conn.SelectContext(ctx, &events,
		"SELECT seq, event_id, timestamp, region, description, effects_json FROM event_history ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("load events: timestamp %q: %w", e.Timestamp, err)
		}
		var effects map[string]float64
		if err := json.Unmarshal([]byte(e.EffectsJSON), &effects); err != nil {
			return nil, fmt.Errorf("load events: effects: %w", err)
		}
		snap.EventHistory = append(snap.EventHistory, snapshot.EventRecord{
			ID:          e.EventID,
			Timestamp:   snapshot.Timestamp{Time: ts},
			Region:      e.Region,
			Description: e.Description,
			Effects:     effects,
		})
	}

	slog.Debug("snapshot loaded", "store", BackendSQLite, "cells", len(prices), "events", len(events))
	return snap, nil
}
