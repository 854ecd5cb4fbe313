// Package engine provides the tick-based scheduler and the bookstore model
// that wires agents, the bus, and the catalog together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/entropy"
)

// Tick schedule: one tick is one simulated minute.
const (
	TicksPerSimHour = 60
	TicksPerSimDay  = 1440
)

// ErrDuplicateAgent is returned when admitting an id that is already
// scheduled or waiting for admission.
var ErrDuplicateAgent = errors.New("agent already scheduled")

type hook struct {
	period uint64
	name   string
	fn     func(completed uint64)
}

// Scheduler owns the active agent set and advances simulated time. It is
// driven from a single goroutine; Running and TickCount may be read from
// anywhere.
type Scheduler struct {
	bus    *bus.Bus
	rng    *entropy.Source
	logger *slog.Logger

	// MaxTicks stops the scheduler once reached. Zero means unbounded.
	MaxTicks uint64
	// PurgeOnRetire drops a retired agent's mailbox and subscriptions.
	PurgeOnRetire bool
	// Interval paces Run. Zero runs ticks back to back.
	Interval time.Duration

	tick    atomic.Uint64
	running atomic.Bool

	active  []agents.Agent // admission order
	index   map[string]agents.Agent
	pending []agents.Agent
	byKind  map[agents.Kind][]string
	hooks   []hook

	lastOrder []string
}

// NewScheduler creates a running scheduler that permutes agents with rng and
// purges retired agents from b.
func NewScheduler(b *bus.Bus, rng *entropy.Source, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		bus:           b,
		rng:           rng,
		logger:        logger,
		PurgeOnRetire: true,
		index:         make(map[string]agents.Agent),
		byKind:        make(map[agents.Kind][]string),
	}
	s.running.Store(true)
	return s
}

// Admit queues a for activation at the start of the next tick.
func (s *Scheduler) Admit(a agents.Agent) error {
	id := a.ID()
	if _, ok := s.index[id]; ok {
		return fmt.Errorf("admit %s: %w", id, ErrDuplicateAgent)
	}
	if slices.ContainsFunc(s.pending, func(p agents.Agent) bool { return p.ID() == id }) {
		return fmt.Errorf("admit %s: %w", id, ErrDuplicateAgent)
	}
	s.pending = append(s.pending, a)
	return nil
}

// Retire removes id from the active set immediately. Retiring an unknown or
// already retired id is a no-op. An agent still waiting for admission is
// dropped before it ever steps.
func (s *Scheduler) Retire(id string) {
	if i := slices.IndexFunc(s.pending, func(p agents.Agent) bool { return p.ID() == id }); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
		s.purge(id)
		return
	}

	a, ok := s.index[id]
	if !ok {
		return
	}
	delete(s.index, id)
	s.active = slices.DeleteFunc(s.active, func(x agents.Agent) bool { return x.ID() == id })
	kind := a.Kind()
	s.byKind[kind] = slices.DeleteFunc(s.byKind[kind], func(x string) bool { return x == id })
	s.purge(id)
	s.logger.Debug("agent retired", "id", id, "kind", kind, "state", a.State())
}

func (s *Scheduler) purge(id string) {
	if s.PurgeOnRetire && s.bus != nil {
		s.bus.Unregister(id)
	}
}

// Every runs fn after each tick whose 1-based count is a multiple of period.
// fn receives that count.
func (s *Scheduler) Every(period uint64, name string, fn func(completed uint64)) {
	if period == 0 {
		period = 1
	}
	s.hooks = append(s.hooks, hook{period: period, name: name, fn: fn})
}

// Tick advances the simulation by one tick: step every active agent in a
// fresh random order, retire those that finished, run due hooks, then admit
// agents queued during the tick.
func (s *Scheduler) Tick() {
	now := s.tick.Load()

	order := slices.Clone(s.active)
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	s.lastOrder = s.lastOrder[:0]
	for _, a := range order {
		if _, ok := s.index[a.ID()]; !ok {
			continue // retired earlier in this tick
		}
		s.lastOrder = append(s.lastOrder, a.ID())
		a.Step(now)
		if a.Terminal() {
			s.Retire(a.ID())
		}
	}

	completed := now + 1
	for _, h := range s.hooks {
		if completed%h.period == 0 {
			h.fn(completed)
		}
	}

	s.admitPending()

	s.tick.Store(completed)
	if s.MaxTicks > 0 && completed >= s.MaxTicks {
		s.running.Store(false)
	}
}

// admitPending moves queued agents into the active set.
func (s *Scheduler) admitPending() {
	for _, a := range s.pending {
		s.index[a.ID()] = a
		s.active = append(s.active, a)
		s.byKind[a.Kind()] = append(s.byKind[a.Kind()], a.ID())
	}
	s.pending = s.pending[:0]
}

// Running reports whether the scheduler wants more ticks.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Stop clears the running flag. The tick in progress finishes.
func (s *Scheduler) Stop() { s.running.Store(false) }

// TickCount returns the number of completed ticks.
func (s *Scheduler) TickCount() uint64 { return s.tick.Load() }

// Active reports whether id is in the active set.
func (s *Scheduler) Active(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the active agent with id.
func (s *Scheduler) Get(id string) (agents.Agent, bool) {
	a, ok := s.index[id]
	return a, ok
}

// Len returns the number of active agents.
func (s *Scheduler) Len() int { return len(s.active) }

// Pending returns the number of agents waiting for admission.
func (s *Scheduler) Pending() int { return len(s.pending) }

// Agents returns the active agents in admission order.
func (s *Scheduler) Agents() []agents.Agent { return slices.Clone(s.active) }

// ByKind returns the ids of active agents of kind in admission order.
func (s *Scheduler) ByKind(kind agents.Kind) []string {
	return slices.Clone(s.byKind[kind])
}

// LastOrder returns the activation order of the most recent tick.
func (s *Scheduler) LastOrder() []string { return slices.Clone(s.lastOrder) }

// Run ticks until the scheduler stops or ctx is done. Cancellation is only
// observed between ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "tick", s.TickCount(), "agents", s.Len())
	err := drive(ctx, s.Interval, &s.running, s.Tick)
	s.logger.Info("scheduler stopped", "tick", s.TickCount())
	return err
}

// drive calls step until running is cleared or ctx ends, sleeping out the
// rest of interval after each step.
func drive(ctx context.Context, interval time.Duration, running *atomic.Bool, step func()) error {
	for running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		step()

		if interval <= 0 {
			continue
		}
		if wait := interval - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// SimTime renders a tick count as simulated clock time, e.g. "2h 05m".
func SimTime(tick uint64) string {
	return fmt.Sprintf("%dh %02dm", tick/TicksPerSimHour, tick%TicksPerSimHour)
}
