package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/engine"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	id := uuid.NewString()
	started := time.Unix(1_700_000_000, 0)

	require.NoError(t, db.StartRun(id, 42, map[string]int{"customers": 20}, started))
	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, started.Unix(), run.StartedAt)
	assert.JSONEq(t, `{"customers":20}`, run.Config)
	assert.False(t, run.Finished())

	require.NoError(t, db.FinishRun(id, 480, started.Add(time.Minute)))
	run, err = db.GetRun(id)
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, int64(480), run.FinalTick.Int64)

	err = db.FinishRun("missing", 1, started)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = db.GetRun("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDuplicateRunRejected(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.StartRun("run", 1, nil, time.Now()))
	assert.Error(t, db.StartRun("run", 1, nil, time.Now()))
}

func TestTransactionsAndVisitsTotals(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.StartRun("run", 1, nil, time.Now()))

	txs := []economy.Transaction{
		{ID: "txn_000001", CustomerID: "c1", EmployeeID: "e1", Total: 50, Discount: 5, Tick: 3,
			Lines: []economy.Line{{ISBN: "isbn-1", Quantity: 2, UnitPrice: 25}}},
		{ID: "txn_000002", CustomerID: "c2", EmployeeID: "e1", Total: 20, Discount: 1, Tick: 9},
	}
	require.NoError(t, db.SaveTransactions("run", txs))
	require.NoError(t, db.SaveTransactions("run", nil))
	require.NoError(t, db.SaveVisits("run", []economy.Visit{
		{CustomerID: "c1", Duration: 12, Purchased: true, Interactions: 2, Tick: 4},
		{CustomerID: "c3", Duration: 30, Tick: 40},
	}))

	totals, err := db.Totals("run")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Transactions)
	assert.InDelta(t, 64.0, totals.Revenue, 1e-9)
	assert.Equal(t, 2, totals.Visits)
	assert.Equal(t, 1, totals.Purchases)

	// a failed batch leaves nothing behind
	err = db.SaveTransactions("run", []economy.Transaction{{ID: "txn_000003"}, {ID: "txn_000001"}})
	require.Error(t, err)
	totals, err = db.Totals("run")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Transactions)
}

func TestCheckpoints(t *testing.T) {
	db := openTestDB(t)
	sum := engine.Summary{Tick: 60, Revenue: 123.5, Transactions: 4}
	stats := bus.Stats{TotalMessages: 10, ProcessedMessages: 8, PendingMessages: 2}

	require.NoError(t, db.SaveCheckpoint("run", sum, stats))
	sum.Tick = 120
	require.NoError(t, db.SaveCheckpoint("run", sum, stats))

	cps, err := db.Checkpoints("run")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, int64(60), cps[0].Tick)
	assert.Equal(t, int64(120), cps[1].Tick)
	assert.Equal(t, 4, cps[0].Transactions)

	var decoded bus.Stats
	require.NoError(t, json.Unmarshal([]byte(cps[0].Bus), &decoded))
	assert.Equal(t, 2, decoded.PendingMessages)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveMeta("last_run", "a"))
	require.NoError(t, db.SaveMeta("last_run", "b"))
	v, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = db.GetMeta("nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestJournalFollowsSimulation(t *testing.T) {
	db := openTestDB(t)

	cfg := engine.DefaultConfig()
	cfg.Customers = 10
	cfg.Books = 20
	cfg.Seed = 17
	cfg.Steps = 150
	sim, err := engine.NewSimulation(cfg, quiet)
	require.NoError(t, err)

	j, err := NewJournal(db, sim, "run-17", cfg, 60, quiet)
	require.NoError(t, err)
	sim.OnTick = j.OnTick

	require.NoError(t, sim.Run(context.Background()))
	require.NoError(t, j.Finish())

	cps, err := db.Checkpoints("run-17")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, []int64{60, 120, 150}, []int64{cps[0].Tick, cps[1].Tick, cps[2].Tick})

	totals, err := db.Totals("run-17")
	require.NoError(t, err)
	assert.Equal(t, len(sim.Transactions()), totals.Transactions)
	assert.Equal(t, len(sim.Visits()), totals.Visits)

	run, err := db.GetRun("run-17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), run.Seed)
	assert.Equal(t, int64(150), run.FinalTick.Int64)

	last, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "run-17", last)
}

func TestJournalRetriesFailedRows(t *testing.T) {
	db := openTestDB(t)

	cfg := engine.DefaultConfig()
	cfg.Customers = 5
	cfg.Books = 10
	cfg.Seed = 3
	cfg.Steps = 90
	sim, err := engine.NewSimulation(cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))

	j, err := NewJournal(db, sim, "run-3", cfg, 60, quiet)
	require.NoError(t, err)

	sim.RecordVisit(economy.Visit{CustomerID: "late_1", Duration: 4, Purchased: true})
	sim.RecordVisit(economy.Visit{CustomerID: "late_2", Duration: 9})

	_, err = db.conn.Exec("DROP TABLE visits")
	require.NoError(t, err)
	require.Error(t, j.checkpoint())

	require.NoError(t, db.migrate())
	require.NoError(t, j.checkpoint())

	totals, err := db.Totals("run-3")
	require.NoError(t, err)
	assert.Equal(t, len(sim.Transactions()), totals.Transactions)
	assert.Equal(t, len(sim.Visits()), totals.Visits)

	// nothing is written twice
	require.NoError(t, j.checkpoint())
	again, err := db.Totals("run-3")
	require.NoError(t, err)
	assert.Equal(t, totals, again)
}
