package agents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/entropy"
)

// testWorld is a minimal store wired to a real bus. Employees are offered to
// FindEmployee in the order they were added.
type testWorld struct {
	bus    *bus.Bus
	rng    *entropy.Source
	cat    *economy.Catalog
	demand *economy.DemandField
	season economy.Season

	inactive  map[string]bool
	books     map[string]*Book
	customers map[string]*Customer
	employees []*Employee

	transactions []economy.Transaction
	visits       []economy.Visit
	alerts       []economy.InventoryAlert
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	return &testWorld{
		bus:       bus.New(),
		rng:       entropy.New(42),
		cat:       economy.NewCatalog(),
		demand:    economy.NewDemandField(42),
		season:    economy.Spring,
		inactive:  make(map[string]bool),
		books:     make(map[string]*Book),
		customers: make(map[string]*Customer),
	}
}

func (w *testWorld) Bus() *bus.Bus                { return w.bus }
func (w *testWorld) Rand() *entropy.Source        { return w.rng }
func (w *testWorld) Catalog() *economy.Catalog    { return w.cat }
func (w *testWorld) Demand() *economy.DemandField { return w.demand }
func (w *testWorld) Season() economy.Season       { return w.season }

func (w *testWorld) Active(id string) bool {
	if w.inactive[id] {
		return false
	}
	if _, ok := w.customers[id]; ok {
		return true
	}
	if _, ok := w.books[id]; ok {
		return true
	}
	for _, e := range w.employees {
		if e.ID() == id {
			return true
		}
	}
	return false
}

func (w *testWorld) Customer(id string) (*Customer, bool) {
	c, ok := w.customers[id]
	return c, ok
}

func (w *testWorld) FindEmployee(ok func(*Employee) bool) (*Employee, bool) {
	for _, e := range w.employees {
		if !w.inactive[e.ID()] && ok(e) {
			return e, true
		}
	}
	return nil, false
}

func (w *testWorld) Checkout(c *Customer, e *Employee, lines []economy.Line) (economy.Transaction, error) {
	for _, l := range lines {
		b, ok := w.books[BookID(l.ISBN)]
		if !ok || !b.ApplySale(l.Quantity) {
			return economy.Transaction{}, fmt.Errorf("cannot sell %s", l.ISBN)
		}
	}
	total := economy.Subtotal(lines)
	tx := economy.Transaction{
		ID:         fmt.Sprintf("txn_%d", len(w.transactions)+1),
		CustomerID: c.ID(),
		EmployeeID: e.ID(),
		Lines:      lines,
		Total:      total,
		Discount:   total * economy.Discount(c.Record().Type),
	}
	w.transactions = append(w.transactions, tx)
	return tx, nil
}

func (w *testWorld) RecordVisit(v economy.Visit)                  { w.visits = append(w.visits, v) }
func (w *testWorld) RecordInventoryAlert(a economy.InventoryAlert) { w.alerts = append(w.alerts, a) }

func (w *testWorld) addBook(t *testing.T, b economy.Book) *Book {
	t.Helper()
	rec, err := w.cat.Add(b)
	require.NoError(t, err)
	agent := NewBook(w, rec, w.cat.Len()-1)
	w.books[agent.ID()] = agent
	return agent
}

func (w *testWorld) addCustomer(id string, typ economy.CustomerType) *Customer {
	c := NewCustomer(w, &economy.Customer{ID: id, Name: "Test Shopper", Type: typ}, 0)
	w.customers[id] = c
	return c
}

func (w *testWorld) addEmployee(id string, role economy.Role) *Employee {
	e := NewEmployee(w, &economy.Employee{ID: id, Name: "Test Clerk", Role: role, PerformanceRating: 7}, 0)
	w.employees = append(w.employees, e)
	return e
}

// watch registers an observer subscribed to typ and returns a function that
// drains what it received.
func (w *testWorld) watch(typ bus.MessageType) func() []bus.Message {
	id := "watcher_" + typ.String()
	w.bus.Subscribe(id, typ, func(bus.Message) error { return nil })
	return func() []bus.Message { return w.bus.Drain(id) }
}
