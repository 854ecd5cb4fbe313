package agents

import (
	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/entropy"
)

// World is what agents see of the store around them. The model implements
// it; every method is called from inside a Step on the driver goroutine.
type World interface {
	Bus() *bus.Bus
	Rand() *entropy.Source
	Catalog() *economy.Catalog
	Demand() *economy.DemandField
	Season() economy.Season

	// Active reports whether id is currently scheduled.
	Active(id string) bool
	Customer(id string) (*Customer, bool)
	// FindEmployee picks an active employee matching ok at random.
	FindEmployee(ok func(*Employee) bool) (*Employee, bool)

	// Checkout records the sale and applies each line through the owning
	// book agent. Lines must be in stock.
	Checkout(c *Customer, e *Employee, lines []economy.Line) (economy.Transaction, error)
	RecordVisit(v economy.Visit)
	RecordInventoryAlert(a economy.InventoryAlert)
}

// BookID is the bus address of the agent that owns isbn.
func BookID(isbn string) string {
	return "book_" + isbn
}
