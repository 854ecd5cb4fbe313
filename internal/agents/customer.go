package agents

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
)

// Customer states.
const (
	CustomerBrowsing    State = "browsing"
	CustomerEvaluating  State = "evaluating"
	CustomerPurchasing  State = "purchasing"
	CustomerSeekingHelp State = "seeking_help"
	CustomerLeft        State = "left"
)

var customerMachine = &Machine{
	Initial:  CustomerBrowsing,
	Terminal: []State{CustomerLeft},
	Transitions: map[State][]State{
		CustomerBrowsing:    {CustomerEvaluating, CustomerPurchasing, CustomerSeekingHelp, CustomerLeft},
		CustomerEvaluating:  {CustomerBrowsing, CustomerPurchasing, CustomerLeft},
		CustomerPurchasing:  {CustomerBrowsing, CustomerSeekingHelp, CustomerLeft},
		CustomerSeekingHelp: {CustomerBrowsing, CustomerLeft},
	},
}

// Help types a customer can ask for.
const (
	HelpRecommendation = "recommendation"
	HelpLocation       = "location"
	HelpPriceInfo      = "price_info"
)

var helpTypes = []string{HelpRecommendation, HelpLocation, HelpPriceInfo}

// Assignment statuses carried on EmployeeAssignment.
const (
	AssignmentAccepted  = "accepted"
	AssignmentCompleted = "completed"
	AssignmentReleased  = "released"
)

type cartItem struct {
	ISBN     string  `json:"isbn"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Interaction is one notable thing that happened to a customer.
type Interaction struct {
	Type     string  `json:"type"` // help_request, assistance, purchase
	Employee string  `json:"employee"`
	Detail   string  `json:"detail,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Tick     uint64  `json:"tick"`
}

// Customer browses, fills a cart, asks staff for help, and checks out.
type Customer struct {
	fsm
	id    string
	world World
	rec   *economy.Customer

	preferred        []economy.Category
	budget           float64
	priceSensitivity float64 // 0 = indifferent, 1 = very sensitive
	loyaltyFactor    float64

	patience     int
	arrived      uint64
	now          uint64 // tick of the step in progress
	cart         []cartItem
	interactions []Interaction
	purchased    bool

	servedBy  string // employee currently helping, "" when not being served
	inquiryTo string // employee asked for help, awaiting acceptance
}

// NewCustomer creates a shopper for rec arriving at tick and subscribes it
// to price, stock, and staff messages.
func NewCustomer(w World, rec *economy.Customer, arrived uint64) *Customer {
	rng := w.Rand()
	lo, hi := economy.BudgetRange(rec.Type)

	nPrefs := rng.IntRange(1, 4)
	prefs := make([]economy.Category, 0, nPrefs)
	for _, i := range rng.Sample(economy.NumCategories, nPrefs) {
		prefs = append(prefs, economy.Category(i))
	}

	c := &Customer{
		fsm:              newFSM(customerMachine),
		id:               rec.ID,
		world:            w,
		rec:              rec,
		preferred:        prefs,
		budget:           rng.Uniform(lo, hi),
		patience:         rng.IntRange(5, 20),
		arrived:          arrived,
		priceSensitivity: rng.Uniform(0.1, 0.9),
		loyaltyFactor:    rng.Uniform(0.5, 1.0),
	}

	b := w.Bus()
	b.Subscribe(c.id, bus.PriceUpdate, c.handlePriceUpdate)
	b.Subscribe(c.id, bus.LowStockAlert, c.handleStockAlert)
	b.Subscribe(c.id, bus.EmployeeAssignment, c.handleAssignment)
	return c
}

func (c *Customer) ID() string     { return c.id }
func (c *Customer) Kind() Kind     { return KindCustomer }
func (c *Customer) State() State   { return c.state }
func (c *Customer) Terminal() bool { return c.terminal() }

// Record returns the customer's loyalty record.
func (c *Customer) Record() *economy.Customer { return c.rec }

// Preferred returns the categories the customer likes.
func (c *Customer) Preferred() []economy.Category { return slices.Clone(c.preferred) }

// Busy reports whether an employee is currently serving the customer.
func (c *Customer) Busy() bool { return c.servedBy != "" }

// Patience returns the ticks the customer will still wait.
func (c *Customer) Patience() int { return c.patience }

// Step handles staff and stock messages, then advances the shopping trip.
// Patience does not run down while an employee is serving the customer.
func (c *Customer) Step(tick uint64) {
	if c.terminal() {
		return
	}
	c.now = tick
	c.world.Bus().Dispatch(c.id)

	if c.servedBy != "" {
		return
	}

	c.patience--
	if c.patience <= 0 {
		c.leave(tick)
		return
	}

	switch c.state {
	case CustomerBrowsing:
		c.browse()
	case CustomerEvaluating:
		c.evaluate(tick)
	case CustomerPurchasing:
		c.purchase(tick)
	case CustomerSeekingHelp:
		c.seekHelp(tick)
	}
}

func (c *Customer) browse() {
	available := c.world.Catalog().InStock()
	if len(available) == 0 {
		c.moveTo(CustomerSeekingHelp)
		return
	}

	pool := c.world.Catalog().InCategories(c.preferred)
	if len(pool) == 0 {
		pool = available
	}
	for _, i := range c.world.Rand().Sample(len(pool), 3) {
		if c.consider(pool[i]) {
			c.addToCart(pool[i])
		}
	}

	if len(c.cart) > 0 {
		c.moveTo(CustomerEvaluating)
	} else {
		// Nothing caught the eye; patience runs down faster.
		c.patience--
	}
}

func (c *Customer) consider(b economy.Book) bool {
	if b.Price > c.budget*0.6 {
		return false
	}
	bonus := 0.3
	if slices.Contains(c.preferred, b.Category) {
		bonus = 0.7
	}
	return c.world.Rand().Chance(bonus)
}

func (c *Customer) addToCart(b economy.Book) {
	if b.Stock <= 0 {
		return
	}
	for i := range c.cart {
		if c.cart[i].ISBN == b.ISBN {
			if c.cart[i].Quantity < b.Stock {
				c.cart[i].Quantity++
			}
			return
		}
	}
	c.cart = append(c.cart, cartItem{ISBN: b.ISBN, Title: b.Title, Price: b.Price, Quantity: 1})
}

func (c *Customer) cartTotal() float64 {
	total := 0.0
	for _, it := range c.cart {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func (c *Customer) evaluate(tick uint64) {
	if len(c.cart) == 0 {
		c.moveTo(CustomerBrowsing)
		return
	}

	discounted := c.cartTotal() * (1 - economy.Discount(c.rec.Type))
	withinBudget := discounted <= c.budget
	acceptable := discounted/c.budget <= 1-c.priceSensitivity

	if withinBudget && acceptable {
		c.moveTo(CustomerPurchasing)
		return
	}
	if !c.world.Rand().Chance(0.5) {
		c.leave(tick)
		return
	}
	c.dropExpensive()
	if len(c.cart) == 0 {
		c.moveTo(CustomerBrowsing)
	}
}

// dropExpensive removes the pricier half of the cart (at least one item).
func (c *Customer) dropExpensive() {
	slices.SortStableFunc(c.cart, func(a, b cartItem) int {
		switch {
		case a.Price > b.Price:
			return -1
		case a.Price < b.Price:
			return 1
		}
		return 0
	})
	n := max(1, len(c.cart)/2)
	c.cart = slices.Delete(c.cart, 0, min(n, len(c.cart)))
}

func (c *Customer) purchase(tick uint64) {
	cat := c.world.Catalog()
	c.cart = slices.DeleteFunc(c.cart, func(it cartItem) bool {
		return !cat.Available(it.ISBN, it.Quantity)
	})
	if len(c.cart) == 0 {
		c.moveTo(CustomerBrowsing)
		return
	}

	cashier, ok := c.world.FindEmployee((*Employee).CanCheckout)
	if !ok {
		c.moveTo(CustomerSeekingHelp)
		return
	}

	lines := make([]economy.Line, len(c.cart))
	for i, it := range c.cart {
		lines[i] = economy.Line{ISBN: it.ISBN, Quantity: it.Quantity, UnitPrice: it.Price}
	}
	tx, err := c.world.Checkout(c, cashier, lines)
	if err != nil {
		slog.Debug("checkout failed", "customer", c.id, "error", err)
		c.moveTo(CustomerBrowsing)
		return
	}

	net := tx.Net()
	c.rec.TotalPurchases += net
	c.rec.LoyaltyPoints += economy.LoyaltyPoints(net)
	for _, l := range lines {
		c.rec.PurchaseHistory = append(c.rec.PurchaseHistory, l.ISBN)
	}
	c.interactions = append(c.interactions, Interaction{
		Type:     "purchase",
		Employee: cashier.ID(),
		Detail:   tx.ID,
		Amount:   net,
		Tick:     tick,
	})

	items := 0
	for _, l := range lines {
		items += l.Quantity
	}
	c.world.Bus().Publish(c.id, bus.PurchaseCompleted, bus.Payload{
		"transaction_id": tx.ID,
		"customer":       c.rec.ID,
		"total":          tx.Total,
		"discount":       tx.Discount,
		"items":          items,
	}, bus.To(cashier.ID()), bus.WithPriority(2))

	c.purchased = true
	c.cart = nil
	c.leave(tick)
}

func (c *Customer) seekHelp(tick uint64) {
	if c.inquiryTo != "" {
		if c.world.Active(c.inquiryTo) {
			return
		}
		c.inquiryTo = ""
	}

	helper, ok := c.world.FindEmployee((*Employee).CanAssist)
	if !ok {
		c.patience -= 2
		if c.patience <= 0 {
			c.leave(tick)
		}
		return
	}

	rng := c.world.Rand()
	helpType := helpTypes[rng.Intn(len(helpTypes))]
	c.world.Bus().Publish(c.id, bus.CustomerInquiry, bus.Payload{
		"help_type":  helpType,
		"categories": slices.Clone(c.preferred),
		"history":    slices.Clone(c.rec.PurchaseHistory),
	}, bus.To(helper.ID()), bus.WithPriority(2))

	c.inquiryTo = helper.ID()
	c.interactions = append(c.interactions, Interaction{
		Type:     "help_request",
		Employee: helper.ID(),
		Detail:   helpType,
		Tick:     tick,
	})
}

func (c *Customer) leave(tick uint64) {
	c.moveTo(CustomerLeft)
	c.servedBy = ""
	c.inquiryTo = ""
	c.world.RecordVisit(economy.Visit{
		CustomerID:   c.rec.ID,
		Duration:     int(tick - c.arrived),
		Purchased:    c.purchased,
		Interactions: len(c.interactions),
		Tick:         tick,
	})
}

func (c *Customer) handlePriceUpdate(msg bus.Message) error {
	isbn, _ := msg.Payload.Str("isbn")
	price, ok := msg.Payload.Float("new_price")
	if !ok {
		return fmt.Errorf("price update for %s without new_price", isbn)
	}
	limit := c.budget * c.priceSensitivity
	c.cart = slices.DeleteFunc(c.cart, func(it cartItem) bool {
		return it.ISBN == isbn && price > limit
	})
	for i := range c.cart {
		if c.cart[i].ISBN == isbn {
			c.cart[i].Price = price
		}
	}
	return nil
}

func (c *Customer) handleStockAlert(msg bus.Message) error {
	isbn, _ := msg.Payload.Str("isbn")
	if c.state != CustomerBrowsing {
		return nil
	}
	if slices.ContainsFunc(c.cart, func(it cartItem) bool { return it.ISBN == isbn }) {
		// Rush to buy before it sells out.
		c.moveTo(CustomerPurchasing)
	}
	return nil
}

func (c *Customer) handleAssignment(msg bus.Message) error {
	if c.terminal() {
		return nil
	}
	status, _ := msg.Payload.Str("status")
	switch status {
	case AssignmentAccepted:
		c.inquiryTo = ""
		c.servedBy = msg.From
	case AssignmentCompleted:
		c.servedBy = ""
		helpType, _ := msg.Payload.Str("help_type")
		cat := c.world.Catalog()
		for _, isbn := range msg.Payload.Strings("recommendations") {
			if b, ok := cat.Get(isbn); ok && b.Stock > 0 && c.consider(b) {
				c.addToCart(b)
			}
		}
		bonus, _ := msg.Payload.Int("patience_bonus")
		c.patience += bonus
		c.interactions = append(c.interactions, Interaction{
			Type:     "assistance",
			Employee: msg.From,
			Detail:   helpType,
			Tick:     c.now,
		})
		if c.state == CustomerSeekingHelp {
			c.moveTo(CustomerBrowsing)
		}
	case AssignmentReleased:
		c.servedBy = ""
		c.inquiryTo = ""
	default:
		return fmt.Errorf("unknown assignment status %q", status)
	}
	return nil
}

// Snapshot reports the shopping trip so far.
func (c *Customer) Snapshot() Snapshot {
	prefs := make([]string, len(c.preferred))
	for i, p := range c.preferred {
		prefs[i] = p.String()
	}
	return Snapshot{
		ID:    c.id,
		Kind:  KindCustomer,
		State: c.state,
		Busy:  c.Busy(),
		Details: map[string]any{
			"customer_type":        c.rec.Type.String(),
			"preferred_categories": prefs,
			"cart_items":           len(c.cart),
			"cart_value":           round(c.cartTotal(), 2),
			"budget":               round(c.budget, 2),
			"patience_remaining":   c.patience,
			"total_purchases":      round(c.rec.TotalPurchases, 2),
			"loyalty_points":       c.rec.LoyaltyPoints,
			"served_by":            c.servedBy,
			"interactions":         len(c.interactions),
			"loyalty_factor":       round(c.loyaltyFactor, 2),
		},
	}
}
