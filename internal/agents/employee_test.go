package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
)

func TestEmployeeBusyCountdown(t *testing.T) {
	w := newTestWorld(t)
	e := w.addEmployee("employee_001", economy.InventoryClerk)

	e.begin(TaskMaintenance, 3)
	require.False(t, e.Available())

	e.Step(10)
	assert.Equal(t, 2, e.work.Remaining())
	assert.Equal(t, EmployeeBusy, e.State())

	e.Step(11)
	assert.Equal(t, 1, e.work.Remaining())
	assert.Equal(t, EmployeeBusy, e.State())

	e.Step(12)
	assert.Zero(t, e.work.Remaining())
	assert.Equal(t, EmployeeAvailable, e.State(), "task completes in the step it reaches zero")
	assert.True(t, e.Available())
}

func TestEmployeeSaleTaskTiming(t *testing.T) {
	sell := func(w *testWorld, e *Employee, items int) {
		w.bus.Publish("customer_0001", bus.PurchaseCompleted, bus.Payload{
			"transaction_id": "txn_1",
			"total":          10.0,
			"discount":       0.0,
			"items":          items,
		}, bus.To(e.ID()), bus.WithPriority(2))
	}

	t.Run("one tick task starts and finishes in the same step", func(t *testing.T) {
		w := newTestWorld(t)
		e := w.addEmployee("employee_001", economy.Cashier)
		e.efficiency = 1
		sell(w, e, 1)

		e.Step(5)
		assert.Equal(t, 1, e.transactionsProcessed)
		assert.Equal(t, 1, e.planned)
		assert.Equal(t, EmployeeAvailable, e.State())
		assert.Empty(t, e.sales)
	})

	t.Run("three tick task finishes two steps after it starts", func(t *testing.T) {
		w := newTestWorld(t)
		e := w.addEmployee("employee_001", economy.Cashier)
		e.efficiency = 1
		sell(w, e, 3)

		e.Step(5)
		assert.Equal(t, 3, e.planned)
		assert.Equal(t, 2, e.work.Remaining())
		assert.Equal(t, EmployeeBusy, e.State())

		e.Step(6)
		assert.Equal(t, 1, e.work.Remaining())
		assert.Zero(t, e.transactionsProcessed)

		e.Step(7)
		assert.Equal(t, 1, e.transactionsProcessed)
		assert.Equal(t, EmployeeAvailable, e.State())
	})
}

func TestEmployeeProcessesSale(t *testing.T) {
	w := newTestWorld(t)
	e := w.addEmployee("employee_001", economy.Cashier)

	w.bus.Publish("customer_0001", bus.PurchaseCompleted, bus.Payload{
		"transaction_id": "txn_1",
		"total":          40.0,
		"discount":       4.0,
		"items":          3,
	}, bus.To(e.ID()), bus.WithPriority(2))

	for tick := uint64(1); tick <= 10 && e.transactionsProcessed == 0; tick++ {
		e.Step(tick)
	}
	assert.Equal(t, 1, e.transactionsProcessed)
	assert.Equal(t, 1, e.Record().SalesCount)
	assert.InDelta(t, 36.0, e.dailySales, 1e-9)
	assert.True(t, e.Available())
	assert.Empty(t, e.sales)
}

func TestEmployeeAssistsCustomer(t *testing.T) {
	w := newTestWorld(t)
	w.addBook(t, economy.Book{ISBN: "978-1-000000-07-0", Title: "On Shelf", Category: economy.Fiction, Price: 5, Stock: 10})
	e := w.addEmployee("employee_001", economy.CustomerServiceRep)
	c := w.addCustomer("customer_0001", economy.Regular)
	c.patience = 50
	c.moveTo(CustomerSeekingHelp)

	c.Step(1)
	require.Equal(t, e.ID(), c.inquiryTo)
	require.Equal(t, 1, w.bus.QueueSize(e.ID()))

	e.Step(1)
	require.Equal(t, TaskAssist, e.work.Task())
	assert.Equal(t, c.ID(), e.customer)

	c.Step(2)
	assert.True(t, c.Busy(), "customer sees the acceptance")
	assert.Equal(t, 49, c.Patience(), "patience held while served")

	for tick := uint64(2); tick <= 6 && e.work.Busy(); tick++ {
		e.Step(tick)
	}
	require.False(t, e.work.Busy())
	assert.Equal(t, 1, e.customersServed)
	assert.Greater(t, e.Satisfaction(), 5.0)

	c.Step(7)
	assert.False(t, c.Busy())
	assert.NotEqual(t, CustomerSeekingHelp, c.State())
	assert.Contains(t, interactionTypes(c), "assistance")
}

func TestEmployeeSkipsCustomerWhoLeft(t *testing.T) {
	w := newTestWorld(t)
	e := w.addEmployee("employee_001", economy.SalesAssociate)
	c := w.addCustomer("customer_0001", economy.Regular)

	w.bus.Publish(c.ID(), bus.CustomerInquiry, bus.Payload{"help_type": HelpPriceInfo}, bus.To(e.ID()))
	w.inactive[c.ID()] = true

	e.Step(1)
	assert.NotEqual(t, TaskAssist, e.work.Task())
	assert.Empty(t, e.inquiries)
}

func TestEmployeeInquiryRequiresAssistCapability(t *testing.T) {
	w := newTestWorld(t)
	clerk := w.addEmployee("employee_001", economy.InventoryClerk)

	err := clerk.handleInquiry(bus.Message{From: "customer_0001", Payload: bus.Payload{"help_type": HelpLocation}})
	require.ErrorIs(t, err, errCannotAssist)
	assert.Empty(t, clerk.inquiries)
}

func TestEmployeeInquiryDedupedByCustomer(t *testing.T) {
	w := newTestWorld(t)
	e := w.addEmployee("employee_001", economy.SalesAssociate)

	msg := bus.Message{From: "customer_0001", Payload: bus.Payload{"help_type": HelpLocation}}
	require.NoError(t, e.handleInquiry(msg))
	require.NoError(t, e.handleInquiry(msg))
	assert.Len(t, e.inquiries, 1)
}

func TestEmployeeLowStockNotes(t *testing.T) {
	w := newTestWorld(t)
	cashier := w.addEmployee("employee_001", economy.Cashier)
	clerk := w.addEmployee("employee_002", economy.InventoryClerk)

	alert := func(qty int) bus.Message {
		return bus.Message{From: "book_x", Payload: bus.Payload{"isbn": "x", "reorder_quantity": qty}}
	}
	require.NoError(t, cashier.handleLowStock(alert(20)))
	assert.Empty(t, cashier.lowStock, "cashiers do not manage inventory")

	require.NoError(t, clerk.handleLowStock(alert(20)))
	require.NoError(t, clerk.handleLowStock(alert(30)))
	require.Len(t, clerk.lowStock, 1)
	assert.Equal(t, 30, clerk.lowStock[0].quantity)

	assert.Error(t, clerk.handleLowStock(bus.Message{Payload: bus.Payload{}}))
}

func TestEmployeeInventoryTaskRestocksBook(t *testing.T) {
	w := newTestWorld(t)
	book := w.addBook(t, lowStockBook())
	clerk := w.addEmployee("employee_001", economy.InventoryClerk)

	clerk.restock = []restockNote{{isbn: book.ISBN(), quantity: 5}}
	clerk.begin(TaskInventory, 1)

	clerk.Step(1)
	assert.True(t, clerk.Available())
	require.Equal(t, 1, w.bus.QueueSize(book.ID()))

	book.Step(2)
	assert.Equal(t, 9, book.Stock())
}

func TestEmployeeEndOfShiftReleasesCustomers(t *testing.T) {
	w := newTestWorld(t)
	e := NewEmployee(w, &economy.Employee{ID: "employee_001", Role: economy.SalesAssociate, PerformanceRating: 6}, 2)
	w.employees = append(w.employees, e)
	c := w.addCustomer("customer_0001", economy.Regular)

	e.Step(1)
	w.bus.Publish(c.ID(), bus.CustomerInquiry, bus.Payload{"help_type": HelpLocation}, bus.To(e.ID()))
	e.Step(2)

	assert.Equal(t, EmployeeOffShift, e.State())
	assert.True(t, e.Terminal())
	assert.False(t, e.CanAssist())
	assert.NotEqual(t, 6.0, e.Record().PerformanceRating)

	got := w.bus.Drain(c.ID())
	require.Len(t, got, 1)
	assert.Equal(t, bus.EmployeeAssignment, got[0].Type)
	assert.Equal(t, AssignmentReleased, got[0].Payload["status"])
}

func TestEmployeeSnapshot(t *testing.T) {
	w := newTestWorld(t)
	e := w.addEmployee("employee_001", economy.Manager)

	snap := e.Snapshot()
	assert.Equal(t, KindEmployee, snap.Kind)
	assert.Equal(t, EmployeeAvailable, snap.State)
	assert.Equal(t, "Manager", snap.Details["role"])
	assert.LessOrEqual(t, snap.Details["efficiency"], 1.0)
}

func interactionTypes(c *Customer) []string {
	var out []string
	for _, i := range c.interactions {
		out = append(out, i.Type)
	}
	return out
}
