package agents

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
)

// Employee states.
const (
	EmployeeAvailable State = "available"
	EmployeeBusy      State = "busy"
	EmployeeOffShift  State = "off_shift"
)

var employeeMachine = &Machine{
	Initial:  EmployeeAvailable,
	Terminal: []State{EmployeeOffShift},
	Transitions: map[State][]State{
		EmployeeAvailable: {EmployeeBusy, EmployeeOffShift},
		EmployeeBusy:      {EmployeeAvailable, EmployeeOffShift},
	},
}

// Employee tasks.
const (
	TaskAssist      = "assist"
	TaskProcess     = "process_transaction"
	TaskInventory   = "inventory"
	TaskMaintenance = "maintenance"
)

// DefaultShiftTicks is an eight hour shift at one tick per minute.
const DefaultShiftTicks = 8 * 60

const maxRestocksPerTask = 5

var errCannotAssist = errors.New("employee cannot assist customers")

type inquiry struct {
	customer   string
	helpType   string
	categories []economy.Category
	history    []string
}

type sale struct {
	customer    string
	transaction string
	amount      float64
	items       int
}

type restockNote struct {
	isbn     string
	quantity int
}

// Employee takes help requests, rings up sales, and restocks shelves
// according to role.
type Employee struct {
	fsm
	id    string
	world World
	rec   *economy.Employee

	caps       []economy.Capability
	efficiency float64
	shiftTicks int
	worked     int

	work     Workload
	planned  int    // duration the current task was started with
	customer string // customer tied to the current task
	current  inquiry
	restock  []restockNote // titles the current inventory task will reorder

	inquiries []inquiry
	sales     []sale
	lowStock  []restockNote

	dailySales            float64
	customersServed       int
	transactionsProcessed int
	satisfaction          float64 // 0–10
}

// NewEmployee creates the agent for rec and subscribes it to customer
// inquiries, completed purchases, and stock alerts.
func NewEmployee(w World, rec *economy.Employee, shiftTicks int) *Employee {
	if shiftTicks <= 0 {
		shiftTicks = DefaultShiftTicks
	}
	rng := w.Rand()
	eff := economy.BaseEfficiency(rec.Role) + rec.PerformanceRating/10*0.3 + rng.Uniform(-0.1, 0.1)

	e := &Employee{
		fsm:          newFSM(employeeMachine),
		id:           rec.ID,
		world:        w,
		rec:          rec,
		caps:         economy.Capabilities(rec.Role),
		efficiency:   min(1.0, eff),
		shiftTicks:   shiftTicks,
		satisfaction: 5.0,
	}

	b := w.Bus()
	b.Subscribe(e.id, bus.CustomerInquiry, e.handleInquiry)
	b.Subscribe(e.id, bus.PurchaseCompleted, e.handlePurchase)
	b.Subscribe(e.id, bus.LowStockAlert, e.handleLowStock)
	return e
}

func (e *Employee) ID() string     { return e.id }
func (e *Employee) Kind() Kind     { return KindEmployee }
func (e *Employee) State() State   { return e.state }
func (e *Employee) Terminal() bool { return e.terminal() }

// Record returns the staff record.
func (e *Employee) Record() *economy.Employee { return e.rec }

// Has reports whether the employee's role grants capability c.
func (e *Employee) Has(c economy.Capability) bool {
	return slices.Contains(e.caps, c)
}

// Available reports whether the employee is on shift and between tasks.
func (e *Employee) Available() bool {
	return e.state == EmployeeAvailable && !e.work.Busy()
}

// CanCheckout reports whether the employee can ring up a sale right now.
func (e *Employee) CanCheckout() bool {
	return e.Available() && e.Has(economy.ProcessTransaction)
}

// CanAssist reports whether the employee can take a help request right now.
func (e *Employee) CanAssist() bool {
	return e.Available() && e.canAssist()
}

func (e *Employee) canAssist() bool {
	return e.Has(economy.CustomerAssistance) || e.Has(economy.CustomerService)
}

// Satisfaction returns the running customer satisfaction score.
func (e *Employee) Satisfaction() float64 { return e.satisfaction }

// Step handles messages, then either finds work or progresses the current
// task. A task finishing this tick frees the employee without starting
// anything new until the next tick.
func (e *Employee) Step(tick uint64) {
	if e.terminal() {
		return
	}
	e.world.Bus().Dispatch(e.id)

	e.worked++
	if e.worked >= e.shiftTicks {
		e.endShift()
		return
	}

	if !e.work.Busy() {
		e.findWork()
	}
	if e.work.Busy() && e.work.Advance() {
		e.complete()
	}
}

func (e *Employee) begin(task string, duration int) {
	e.work.Begin(task, duration)
	e.planned = e.work.Remaining()
	e.moveTo(EmployeeBusy)
}

func (e *Employee) findWork() {
	rng := e.world.Rand()

	if e.canAssist() {
		for len(e.inquiries) > 0 {
			inq := e.inquiries[0]
			e.inquiries = e.inquiries[1:]
			if !e.stillWaiting(inq.customer) {
				continue
			}
			e.current = inq
			e.customer = inq.customer
			e.begin(TaskAssist, rng.IntRange(2, 5))
			e.world.Bus().Publish(e.id, bus.EmployeeAssignment, bus.Payload{
				"status":    AssignmentAccepted,
				"task":      TaskAssist,
				"help_type": inq.helpType,
				"duration":  e.planned,
			}, bus.To(inq.customer), bus.WithPriority(3))
			return
		}
	}

	if e.Has(economy.ProcessTransaction) && len(e.sales) > 0 {
		s := e.sales[0]
		e.sales = e.sales[1:]
		e.customer = s.customer
		e.begin(TaskProcess, max(1, int(float64(max(1, s.items))/e.efficiency)))
		e.dailySales += s.amount
		return
	}

	if e.Has(economy.InventoryManagement) && len(e.lowStock) > 0 && rng.Chance(0.3) {
		n := min(maxRestocksPerTask, len(e.lowStock))
		e.restock = slices.Clone(e.lowStock[:n])
		e.lowStock = slices.Delete(e.lowStock, 0, n)
		e.begin(TaskInventory, rng.IntRange(3, 8))
		return
	}

	if rng.Chance(0.1) {
		e.begin(TaskMaintenance, rng.IntRange(1, 3))
	}
}

func (e *Employee) stillWaiting(customerID string) bool {
	if !e.world.Active(customerID) {
		return false
	}
	c, ok := e.world.Customer(customerID)
	return ok && c.State() == CustomerSeekingHelp && !c.Busy()
}

func (e *Employee) complete() {
	switch e.work.Task() {
	case TaskAssist:
		e.completeAssist()
	case TaskProcess:
		e.transactionsProcessed++
		e.rec.SalesCount++
		if e.planned <= 2 {
			e.satisfaction = min(10, e.satisfaction+0.1)
		}
	case TaskInventory:
		for _, note := range e.restock {
			e.world.Bus().Publish(e.id, bus.RestockRequest, bus.Payload{
				"isbn":     note.isbn,
				"quantity": note.quantity,
			}, bus.To(BookID(note.isbn)), bus.WithPriority(3))
		}
		e.restock = nil
	case TaskMaintenance:
	}

	e.work.Clear()
	e.customer = ""
	e.current = inquiry{}
	e.moveTo(EmployeeAvailable)
}

func (e *Employee) completeAssist() {
	e.customersServed++
	impact := e.rec.PerformanceRating / 10 * 2
	e.satisfaction = min(10, e.satisfaction+impact*0.1)

	payload := bus.Payload{
		"status":    AssignmentCompleted,
		"help_type": e.current.helpType,
	}
	switch e.current.helpType {
	case HelpRecommendation:
		payload["recommendations"] = e.recommend(e.current)
		payload["patience_bonus"] = 3
	case HelpLocation:
		payload["patience_bonus"] = 2
	default:
		payload["patience_bonus"] = 1
	}
	e.world.Bus().Publish(e.id, bus.EmployeeAssignment, payload,
		bus.To(e.customer), bus.WithPriority(3))
}

// recommend picks titles related to past purchases, falling back to a few
// in-stock titles from the customer's preferred categories.
func (e *Employee) recommend(inq inquiry) []string {
	cat := e.world.Catalog()
	if recs := economy.Recommend(cat, inq.history, 5); len(recs) > 0 {
		return recs
	}
	pool := cat.InCategories(inq.categories)
	var out []string
	for _, i := range e.world.Rand().Sample(len(pool), 3) {
		out = append(out, pool[i].ISBN)
	}
	return out
}

func (e *Employee) endShift() {
	daily := (e.dailySales/1000 + float64(e.customersServed)/10 + e.satisfaction/10 + e.efficiency) / 4 * 10
	e.rec.PerformanceRating = 0.9*e.rec.PerformanceRating + 0.1*daily

	b := e.world.Bus()
	release := func(customer string) {
		b.Publish(e.id, bus.EmployeeAssignment, bus.Payload{"status": AssignmentReleased},
			bus.To(customer), bus.WithPriority(3))
	}
	if e.work.Task() == TaskAssist && e.customer != "" {
		release(e.customer)
	}
	for _, inq := range e.inquiries {
		release(inq.customer)
	}
	e.inquiries = nil
	e.work.Clear()
	e.customer = ""
	e.moveTo(EmployeeOffShift)
}

func (e *Employee) handleInquiry(msg bus.Message) error {
	if !e.canAssist() {
		return fmt.Errorf("%s: %w", e.id, errCannotAssist)
	}
	if slices.ContainsFunc(e.inquiries, func(q inquiry) bool { return q.customer == msg.From }) {
		return nil
	}
	helpType, _ := msg.Payload.Str("help_type")
	cats, _ := msg.Payload["categories"].([]economy.Category)
	e.inquiries = append(e.inquiries, inquiry{
		customer:   msg.From,
		helpType:   helpType,
		categories: cats,
		history:    msg.Payload.Strings("history"),
	})
	return nil
}

func (e *Employee) handlePurchase(msg bus.Message) error {
	txID, _ := msg.Payload.Str("transaction_id")
	total, _ := msg.Payload.Float("total")
	discount, _ := msg.Payload.Float("discount")
	items, _ := msg.Payload.Int("items")
	e.sales = append(e.sales, sale{
		customer:    msg.From,
		transaction: txID,
		amount:      total - discount,
		items:       items,
	})
	return nil
}

func (e *Employee) handleLowStock(msg bus.Message) error {
	if !e.Has(economy.InventoryManagement) {
		return nil
	}
	isbn, ok := msg.Payload.Str("isbn")
	if !ok {
		return fmt.Errorf("low stock alert from %s without isbn", msg.From)
	}
	qty, _ := msg.Payload.Int("reorder_quantity")
	if qty <= 0 {
		qty = lowStockReorder
	}
	for i := range e.lowStock {
		if e.lowStock[i].isbn == isbn {
			e.lowStock[i].quantity = max(e.lowStock[i].quantity, qty)
			return nil
		}
	}
	e.lowStock = append(e.lowStock, restockNote{isbn: isbn, quantity: qty})
	return nil
}

// Snapshot reports shift progress and the task at hand.
func (e *Employee) Snapshot() Snapshot {
	return Snapshot{
		ID:        e.id,
		Kind:      KindEmployee,
		State:     e.state,
		Busy:      e.work.Busy(),
		Task:      e.work.Task(),
		Remaining: e.work.Remaining(),
		Details: map[string]any{
			"name":                   e.rec.Name,
			"role":                   e.rec.Role.String(),
			"hours_worked":           round(float64(e.worked)/60, 2),
			"daily_sales":            round(e.dailySales, 2),
			"customers_served":       e.customersServed,
			"transactions_processed": e.transactionsProcessed,
			"performance_rating":     round(e.rec.PerformanceRating, 2),
			"customer_satisfaction":  round(e.satisfaction, 2),
			"efficiency":             round(e.efficiency, 2),
			"queued_inquiries":       len(e.inquiries),
			"queued_sales":           len(e.sales),
			"current_customer":       e.customer,
		},
	}
}
