// Package agents provides the agent contract the scheduler drives and the
// three store agent kinds: books, customers, and employees.
package agents

import (
	"fmt"
	"slices"
)

// Kind identifies an agent population.
type Kind string

const (
	KindBook     Kind = "book"
	KindCustomer Kind = "customer"
	KindEmployee Kind = "employee"
)

// State is a node in an agent's state machine.
type State string

// Agent is anything the scheduler can step once per tick.
type Agent interface {
	ID() string
	Kind() Kind
	State() State
	// Step runs one tick: dispatch the mailbox, then act.
	Step(tick uint64)
	// Terminal reports whether the agent reached a terminal state and
	// should be retired.
	Terminal() bool
	Snapshot() Snapshot
}

// Snapshot is a point-in-time view of an agent for reporting.
type Snapshot struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	State     State          `json:"state"`
	Busy      bool           `json:"busy"`
	Task      string         `json:"task,omitempty"`
	Remaining int            `json:"remaining,omitempty"` // ticks left on the current task
	Details   map[string]any `json:"details,omitempty"`
}

// Machine declares a kind's states: where it starts, where it ends, and
// which moves are legal.
type Machine struct {
	Initial     State
	Terminal    []State
	Transitions map[State][]State
}

// IsTerminal reports whether s ends the agent's life.
func (m *Machine) IsTerminal(s State) bool {
	return slices.Contains(m.Terminal, s)
}

// Allows reports whether from → to is a declared transition. Staying put is
// always allowed.
func (m *Machine) Allows(from, to State) bool {
	if from == to {
		return true
	}
	return slices.Contains(m.Transitions[from], to)
}

// fsm tracks one agent's position in its machine.
type fsm struct {
	machine *Machine
	state   State
}

func newFSM(m *Machine) fsm {
	return fsm{machine: m, state: m.Initial}
}

// moveTo changes state. An undeclared move means the transition table and
// the behavior disagree, which is a programming error.
func (f *fsm) moveTo(to State) {
	if !f.machine.Allows(f.state, to) {
		panic(fmt.Sprintf("agents: illegal transition %s → %s", f.state, to))
	}
	f.state = to
}

func (f *fsm) terminal() bool {
	return f.machine.IsTerminal(f.state)
}

// Workload is the busy/available half of an agent. A task lasts a number of
// ticks; the counter is decremented once per tick, starting with the tick
// the task begins, and the task completes in the step where it hits zero.
type Workload struct {
	task      string
	remaining int
}

// Begin starts task for duration ticks (at least one).
func (w *Workload) Begin(task string, duration int) {
	if duration < 1 {
		duration = 1
	}
	w.task = task
	w.remaining = duration
}

// Busy reports whether a task is in progress.
func (w *Workload) Busy() bool {
	return w.remaining > 0
}

// Task names the task in progress, or "" when available.
func (w *Workload) Task() string {
	return w.task
}

// Remaining returns the ticks left on the task.
func (w *Workload) Remaining() int {
	return w.remaining
}

// Advance burns one tick of the current task and reports whether the task
// just completed. The finished task's name stays readable through Task
// until the next Begin or Clear.
func (w *Workload) Advance() bool {
	if w.remaining <= 0 {
		return false
	}
	w.remaining--
	return w.remaining == 0
}

// Clear drops the current task without completing it.
func (w *Workload) Clear() {
	w.task = ""
	w.remaining = 0
}
