// Package persistence provides the SQLite run journal: one row per run,
// periodic checkpoints of store figures and bus counters, and the
// transactions and customer visits recorded along the way.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/engine"
)

// DB wraps a SQLite connection for the run journal.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		final_tick INTEGER
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		revenue REAL NOT NULL,
		transactions INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		bus_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		total REAL NOT NULL,
		discount REAL NOT NULL,
		tick INTEGER NOT NULL,
		lines_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		duration INTEGER NOT NULL,
		purchased INTEGER NOT NULL,
		interactions INTEGER NOT NULL,
		tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_visits_run ON visits(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one simulation run.
type Run struct {
	ID         string        `db:"id" json:"id"`
	Seed       int64         `db:"seed" json:"seed"`
	Config     string        `db:"config_json" json:"config"`
	StartedAt  int64         `db:"started_at" json:"started_at"` // unix seconds
	FinishedAt sql.NullInt64 `db:"finished_at" json:"-"`
	FinalTick  sql.NullInt64 `db:"final_tick" json:"-"`
}

// Finished reports whether the run was closed out.
func (r Run) Finished() bool { return r.FinishedAt.Valid }

// StartRun records a new run. cfg is stored as JSON.
func (db *DB) StartRun(id string, seed int64, cfg any, started time.Time) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, seed, config_json, started_at) VALUES (?, ?, ?, ?)",
		id, seed, string(cfgJSON), started.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	return nil
}

// FinishRun stamps the run with its final tick.
func (db *DB) FinishRun(id string, tick uint64, finished time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, final_tick = ? WHERE id = ?",
		finished.Unix(), int64(tick), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetRun loads a run by id.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT id, seed, config_json, started_at, finished_at, final_tick FROM runs WHERE id = ?", id)
	return r, err
}

// Checkpoint is the store at one tick of a run.
type Checkpoint struct {
	RunID        string  `db:"run_id"`
	Tick         int64   `db:"tick"`
	Revenue      float64 `db:"revenue"`
	Transactions int     `db:"transactions"`
	Summary      string  `db:"summary_json"`
	Bus          string  `db:"bus_json"`
}

// SaveCheckpoint appends a checkpoint for runID.
func (db *DB) SaveCheckpoint(runID string, sum engine.Summary, stats bus.Stats) error {
	sumJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	busJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode bus stats: %w", err)
	}
	_, err = db.conn.Exec(`INSERT INTO checkpoints
		(run_id, tick, revenue, transactions, summary_json, bus_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, int64(sum.Tick), sum.Revenue, sum.Transactions, string(sumJSON), string(busJSON),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint at tick %d: %w", sum.Tick, err)
	}
	return nil
}

// Checkpoints returns every checkpoint of runID, oldest first.
func (db *DB) Checkpoints(runID string) ([]Checkpoint, error) {
	var cps []Checkpoint
	err := db.conn.Select(&cps,
		"SELECT run_id, tick, revenue, transactions, summary_json, bus_json FROM checkpoints WHERE run_id = ? ORDER BY id",
		runID,
	)
	return cps, err
}

// SaveTransactions appends checkouts for runID.
func (db *DB) SaveTransactions(runID string, txs []economy.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO transactions
		(run_id, id, customer_id, employee_id, total, discount, tick, lines_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txs {
		linesJSON, _ := json.Marshal(t.Lines)
		_, err := stmt.Exec(runID, t.ID, t.CustomerID, t.EmployeeID, t.Total, t.Discount, int64(t.Tick), string(linesJSON))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// SaveVisits appends finished customer visits for runID.
func (db *DB) SaveVisits(runID string, visits []economy.Visit) error {
	if len(visits) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, v := range visits {
		purchased := 0
		if v.Purchased {
			purchased = 1
		}
		_, err := tx.Exec(
			"INSERT INTO visits (run_id, customer_id, duration, purchased, interactions, tick) VALUES (?, ?, ?, ?, ?, ?)",
			runID, v.CustomerID, v.Duration, purchased, v.Interactions, int64(v.Tick),
		)
		if err != nil {
			return fmt.Errorf("insert visit %s: %w", v.CustomerID, err)
		}
	}

	return tx.Commit()
}

// RunTotals are aggregates over a run's journaled rows.
type RunTotals struct {
	Transactions int     `db:"transactions"`
	Revenue      float64 `db:"revenue"`
	Visits       int     `db:"visits"`
	Purchases    int     `db:"purchases"`
}

// Totals aggregates what has been journaled for runID.
func (db *DB) Totals(runID string) (RunTotals, error) {
	var t RunTotals
	err := db.conn.Get(&t, `SELECT
		(SELECT COUNT(*) FROM transactions WHERE run_id = ?) AS transactions,
		(SELECT COALESCE(SUM(total - discount), 0) FROM transactions WHERE run_id = ?) AS revenue,
		(SELECT COUNT(*) FROM visits WHERE run_id = ?) AS visits,
		(SELECT COUNT(*) FROM visits WHERE run_id = ? AND purchased = 1) AS purchases`,
		runID, runID, runID, runID,
	)
	return t, err
}

// SaveMeta stores a key-value pair in journal metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO journal_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM journal_meta WHERE key = ?", key)
	return value, err
}
