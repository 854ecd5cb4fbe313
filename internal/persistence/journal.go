package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/shopfloor/internal/engine"
)

// Journal streams one simulation run into the database. Attach its OnTick to
// the simulation; it flushes new records and writes a checkpoint every
// `every` ticks.
type Journal struct {
	db     *DB
	sim    *engine.Simulation
	runID  string
	every  uint64
	logger *slog.Logger

	// rows of each kind already written
	savedTx     int
	savedVisits int
	lastErr     error
}

// NewJournal records the start of run runID and returns a journal for it.
func NewJournal(db *DB, sim *engine.Simulation, runID string, cfg any, every uint64, logger *slog.Logger) (*Journal, error) {
	if every == 0 {
		every = engine.TicksPerSimHour
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.StartRun(runID, sim.Seed(), cfg, time.Now()); err != nil {
		return nil, err
	}
	if err := db.SaveMeta("last_run", runID); err != nil {
		return nil, fmt.Errorf("save meta: %w", err)
	}
	return &Journal{db: db, sim: sim, runID: runID, every: every, logger: logger}, nil
}

// RunID returns the id the run is journaled under.
func (j *Journal) RunID() string { return j.runID }

// OnTick flushes and checkpoints on the journal's period. Failures are
// logged and surfaced by Err and Finish; the run carries on.
func (j *Journal) OnTick(completed uint64) {
	if completed%j.every != 0 {
		return
	}
	if err := j.checkpoint(); err != nil {
		j.lastErr = err
		j.logger.Warn("journal checkpoint failed", "run", j.runID, "tick", completed, "error", err)
	}
}

func (j *Journal) checkpoint() error {
	txs, visits := j.sim.RecordsSince(j.savedTx, j.savedVisits)
	if err := j.db.SaveTransactions(j.runID, txs); err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}
	j.savedTx += len(txs)
	if err := j.db.SaveVisits(j.runID, visits); err != nil {
		return fmt.Errorf("save visits: %w", err)
	}
	j.savedVisits += len(visits)
	if err := j.db.SaveCheckpoint(j.runID, j.sim.Summary(), j.sim.BusStats()); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	j.logger.Debug("journal checkpoint", "run", j.runID, "transactions", len(txs), "visits", len(visits))
	return nil
}

// Err returns the most recent checkpoint failure.
func (j *Journal) Err() error { return j.lastErr }

// Finish writes a closing checkpoint and stamps the run as finished.
func (j *Journal) Finish() error {
	if err := j.checkpoint(); err != nil {
		return err
	}
	if err := j.db.FinishRun(j.runID, j.sim.Tick(), time.Now()); err != nil {
		return err
	}
	j.logger.Info("run journaled", "run", j.runID, "tick", j.sim.Tick())
	return j.lastErr
}
