// Simulation ties the bus, catalog, and agents together and runs them each
// tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/entropy"
)

// Hook periods in ticks.
const (
	ArrivalPeriod = 30
	MetricsPeriod = 1
	ReportPeriod  = TicksPerSimHour
)

// Fraction of the opening customer population already in the store.
const openingShoppers = 0.7

// ErrCheckout is returned when a checkout line cannot be filled.
var ErrCheckout = errors.New("checkout failed")

// Config sizes a run.
type Config struct {
	Customers int
	Employees int
	Books     int
	Hours     int    // simulated hours; ignored when Steps is set
	Steps     uint64 // explicit tick budget
	Seed      int64  // 0 draws a random seed
	StartDay  int    // day of year the run starts on, for seasonal demand

	ShiftTicks int
	Interval   time.Duration
	// KeepMailboxes leaves a retired agent's mailbox on the bus.
	KeepMailboxes bool
}

// DefaultConfig mirrors a small shop over one working day.
func DefaultConfig() Config {
	return Config{
		Customers:  20,
		Employees:  5,
		Books:      100,
		Hours:      8,
		ShiftTicks: agents.DefaultShiftTicks,
	}
}

// MaxTicks returns the tick budget cfg describes.
func (c Config) MaxTicks() uint64 {
	if c.Steps > 0 {
		return c.Steps
	}
	return uint64(max(0, c.Hours)) * TicksPerSimHour
}

// Simulation is the bookstore model. Agents see it through agents.World; every
// World method runs on the driver goroutine while mu is held by Step, so none
// of them lock. Reporting methods take the read lock and observe tick
// boundaries only.
type Simulation struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger

	bus     *bus.Bus
	rng     *entropy.Source
	catalog *economy.Catalog
	demand  *economy.DemandField
	spawner *agents.Spawner
	sched   *Scheduler

	books     map[string]*agents.Book
	customers map[string]*agents.Customer
	employees map[string]*agents.Employee
	records   []*economy.Customer // every customer seen, in arrival order

	transactions []economy.Transaction
	visits       []economy.Visit
	alerts       []economy.InventoryAlert

	revenue         float64
	avgTransaction  float64
	customersServed int
	satisfaction    float64
	season          economy.Season

	// OnTick runs after every tick, outside the model lock.
	OnTick func(completed uint64)
}

// NewSimulation builds the store: catalog and book agents, staff, and the
// opening customers, all admitted for the first tick.
func NewSimulation(cfg Config, logger *slog.Logger) (*Simulation, error) {
	if cfg.Customers < 0 || cfg.Employees < 0 || cfg.Books < 0 {
		return nil, fmt.Errorf("negative population in config: %+v", cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rng := entropy.New(cfg.Seed)
	b := bus.New(bus.WithLogger(logger))
	s := &Simulation{
		cfg:          cfg,
		logger:       logger,
		bus:          b,
		rng:          rng,
		demand:       economy.NewDemandField(rng.Seed()),
		spawner:      agents.NewSpawner(rng),
		books:        make(map[string]*agents.Book),
		customers:    make(map[string]*agents.Customer),
		employees:    make(map[string]*agents.Employee),
		satisfaction: 5.0,
		season:       economy.SeasonOfDay(cfg.StartDay),
	}
	s.sched = NewScheduler(b, rng, logger)
	s.sched.MaxTicks = cfg.MaxTicks()
	s.sched.PurgeOnRetire = !cfg.KeepMailboxes
	s.sched.Interval = cfg.Interval

	cat, err := economy.GenerateCatalog(rng, cfg.Books)
	if err != nil {
		return nil, fmt.Errorf("generate catalog: %w", err)
	}
	s.catalog = cat

	if err := s.createBooks(); err != nil {
		return nil, err
	}
	if err := s.createEmployees(); err != nil {
		return nil, err
	}
	if err := s.createCustomers(); err != nil {
		return nil, err
	}

	s.sched.Every(ArrivalPeriod, "arrivals", s.addNewCustomers)
	s.sched.Every(MetricsPeriod, "metrics", s.updateMetrics)
	s.sched.Every(ReportPeriod, "hourly report", s.hourlyReport)
	s.sched.Every(TicksPerSimDay, "season", s.checkSeason)

	// Seat the opening population so it steps on tick 0.
	s.sched.admitPending()

	logger.Info("store opened",
		"seed", rng.Seed(),
		"books", s.catalog.Len(),
		"employees", len(s.employees),
		"customers", len(s.customers),
		"max_ticks", s.sched.MaxTicks,
		"season", s.season,
	)
	return s, nil
}

func (s *Simulation) createBooks() error {
	for slot, isbn := range s.catalog.ISBNs() {
		rec, _ := s.catalog.Record(isbn)
		book := agents.NewBook(s, rec, slot)
		if err := s.sched.Admit(book); err != nil {
			return fmt.Errorf("create book agent: %w", err)
		}
		s.books[book.ID()] = book
	}
	return nil
}

func (s *Simulation) createEmployees() error {
	for range s.cfg.Employees {
		rec := s.spawner.Employee()
		e := agents.NewEmployee(s, &rec, s.cfg.ShiftTicks)
		if err := s.sched.Admit(e); err != nil {
			return fmt.Errorf("create employee agent: %w", err)
		}
		s.employees[e.ID()] = e
	}
	return nil
}

// createCustomers registers every opening customer; about 70% of them are
// already shopping when the store opens.
func (s *Simulation) createCustomers() error {
	for range s.cfg.Customers {
		rec := s.spawner.Customer(false)
		s.records = append(s.records, &rec)
		if !s.rng.Chance(openingShoppers) {
			continue
		}
		if err := s.admitCustomer(&rec, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) admitCustomer(rec *economy.Customer, arrived uint64) error {
	c := agents.NewCustomer(s, rec, arrived)
	if err := s.sched.Admit(c); err != nil {
		return fmt.Errorf("admit customer: %w", err)
	}
	s.customers[c.ID()] = c
	return nil
}

// addNewCustomers brings one to three walk-ins in; they start shopping on
// the next tick.
func (s *Simulation) addNewCustomers(completed uint64) {
	n := s.rng.IntRange(1, 3)
	for range n {
		rec := s.spawner.Customer(true)
		s.records = append(s.records, &rec)
		if err := s.admitCustomer(&rec, completed); err != nil {
			s.logger.Warn("walk-in not admitted", "customer", rec.ID, "error", err)
		}
	}
	s.logger.Debug("customers arrived", "count", n, "time", SimTime(completed))
}

func (s *Simulation) updateMetrics(uint64) {
	if len(s.transactions) > 0 {
		s.avgTransaction = s.revenue / float64(len(s.transactions))
	}
	sum, n := 0.0, 0
	for _, id := range s.sched.ByKind(agents.KindEmployee) {
		sum += s.employees[id].Satisfaction()
		n++
	}
	if n > 0 {
		s.satisfaction = sum / float64(n)
	}
}

func (s *Simulation) hourlyReport(completed uint64) {
	sum := s.summaryLocked()
	s.logger.Info("hourly report",
		"time", SimTime(completed),
		"revenue", fmt.Sprintf("%.2f", sum.Revenue),
		"transactions", sum.Transactions,
		"active_customers", sum.ActiveCustomers,
		"busy_employees", sum.BusyEmployees,
		"low_stock_books", sum.LowStockBooks,
		"satisfaction", fmt.Sprintf("%.2f", sum.Satisfaction),
		"messages", s.bus.Stats().TotalMessages,
	)
}

// checkSeason moves the calendar on at each simulated midnight.
func (s *Simulation) checkSeason(completed uint64) {
	day := s.cfg.StartDay + int(completed/TicksPerSimDay)
	next := economy.SeasonOfDay(day)
	if next == s.season {
		return
	}
	s.logger.Info("season change", "from", s.season, "to", next, "day", day)
	s.season = next
}

// Step runs one tick under the model lock, then calls OnTick.
func (s *Simulation) Step() {
	s.mu.Lock()
	s.sched.Tick()
	completed := s.sched.TickCount()
	s.mu.Unlock()

	if s.OnTick != nil {
		s.OnTick(completed)
	}
}

// Run steps until the tick budget is spent, Stop is called, or ctx ends.
func (s *Simulation) Run(ctx context.Context) error {
	s.logger.Info("simulation started", "tick", s.sched.TickCount())
	err := drive(ctx, s.cfg.Interval, &s.sched.running, s.Step)
	s.logger.Info("simulation stopped", "tick", s.sched.TickCount(), "time", SimTime(s.sched.TickCount()))
	return err
}

// Stop ends Run after the tick in progress.
func (s *Simulation) Stop() { s.sched.Stop() }

// Running reports whether the run has ticks left.
func (s *Simulation) Running() bool { return s.sched.Running() }

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 { return s.sched.TickCount() }

// Seed returns the seed the run was built from.
func (s *Simulation) Seed() int64 { return s.rng.Seed() }

// --- agents.World ---

func (s *Simulation) Bus() *bus.Bus                { return s.bus }
func (s *Simulation) Rand() *entropy.Source        { return s.rng }
func (s *Simulation) Catalog() *economy.Catalog    { return s.catalog }
func (s *Simulation) Demand() *economy.DemandField { return s.demand }
func (s *Simulation) Season() economy.Season       { return s.season }

func (s *Simulation) Active(id string) bool { return s.sched.Active(id) }

func (s *Simulation) Customer(id string) (*agents.Customer, bool) {
	c, ok := s.customers[id]
	if !ok || !s.sched.Active(id) {
		return nil, false
	}
	return c, true
}

// FindEmployee picks uniformly among active employees that satisfy ok.
func (s *Simulation) FindEmployee(ok func(*agents.Employee) bool) (*agents.Employee, bool) {
	var matches []*agents.Employee
	for _, id := range s.sched.ByKind(agents.KindEmployee) {
		if e := s.employees[id]; ok(e) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	return matches[s.rng.Intn(len(matches))], true
}

// Checkout sells every line through its book agent and records the
// transaction. Nothing is sold unless every line can be filled.
func (s *Simulation) Checkout(c *agents.Customer, e *agents.Employee, lines []economy.Line) (economy.Transaction, error) {
	if len(lines) == 0 {
		return economy.Transaction{}, fmt.Errorf("%w: empty cart", ErrCheckout)
	}
	owners := make([]*agents.Book, len(lines))
	for i, l := range lines {
		book, ok := s.books[agents.BookID(l.ISBN)]
		if !ok {
			return economy.Transaction{}, fmt.Errorf("%w: unknown isbn %s", ErrCheckout, l.ISBN)
		}
		if l.Quantity <= 0 || book.Stock() < l.Quantity {
			return economy.Transaction{}, fmt.Errorf("%w: %s has %d, want %d", ErrCheckout, l.ISBN, book.Stock(), l.Quantity)
		}
		owners[i] = book
	}
	for i, l := range lines {
		owners[i].ApplySale(l.Quantity)
	}

	total := economy.Subtotal(lines)
	tx := economy.Transaction{
		ID:         fmt.Sprintf("txn_%06d", len(s.transactions)+1),
		CustomerID: c.ID(),
		EmployeeID: e.ID(),
		Lines:      slices.Clone(lines),
		Total:      total,
		Discount:   total * economy.Discount(c.Record().Type),
		Tick:       s.sched.TickCount(),
	}
	s.transactions = append(s.transactions, tx)
	s.revenue += tx.Net()
	return tx, nil
}

func (s *Simulation) RecordVisit(v economy.Visit) {
	s.visits = append(s.visits, v)
	if v.Purchased {
		s.customersServed++
	}
}

func (s *Simulation) RecordInventoryAlert(a economy.InventoryAlert) {
	s.alerts = append(s.alerts, a)
}

// --- reporting ---

// Summary is the store at a tick boundary.
type Summary struct {
	Tick            uint64              `json:"simulation_step"`
	SimTime         string              `json:"simulation_time"`
	Season          string              `json:"season"`
	Running         bool                `json:"running"`
	Revenue         float64             `json:"daily_revenue"`
	Transactions    int                 `json:"total_transactions"`
	AvgTransaction  float64             `json:"average_transaction_value"`
	CustomersServed int                 `json:"total_customers_served"`
	ActiveCustomers int                 `json:"active_customers"`
	BusyEmployees   int                 `json:"busy_employees"`
	TotalEmployees  int                 `json:"total_employees"`
	LowStockBooks   int                 `json:"low_stock_books"`
	InventoryAlerts int                 `json:"inventory_alerts"`
	Satisfaction    float64             `json:"customer_satisfaction"`
	CustomerVisits  int                 `json:"customer_visits"`
	ActiveByKind    map[agents.Kind]int `json:"active_by_kind"`
}

// Summary reports store-wide figures.
func (s *Simulation) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Simulation) summaryLocked() Summary {
	tick := s.sched.TickCount()
	sum := Summary{
		Tick:            tick,
		SimTime:         SimTime(tick),
		Season:          s.season.String(),
		Running:         s.sched.Running(),
		Revenue:         round2(s.revenue),
		Transactions:    len(s.transactions),
		AvgTransaction:  round2(s.avgTransaction),
		CustomersServed: s.customersServed,
		TotalEmployees:  len(s.sched.byKind[agents.KindEmployee]),
		InventoryAlerts: len(s.alerts),
		Satisfaction:    round2(s.satisfaction),
		CustomerVisits:  len(s.visits),
		ActiveByKind:    make(map[agents.Kind]int),
	}
	for _, kind := range []agents.Kind{agents.KindBook, agents.KindCustomer, agents.KindEmployee} {
		sum.ActiveByKind[kind] = len(s.sched.byKind[kind])
	}
	sum.ActiveCustomers = sum.ActiveByKind[agents.KindCustomer]
	for _, id := range s.sched.byKind[agents.KindEmployee] {
		if !s.employees[id].Available() {
			sum.BusyEmployees++
		}
	}
	for _, id := range s.sched.byKind[agents.KindBook] {
		if s.books[id].NeedsRestock() {
			sum.LowStockBooks++
		}
	}
	return sum
}

// Snapshots returns a view of every active agent of kind, or of every
// active agent when kind is empty, in admission order.
func (s *Simulation) Snapshots(kind agents.Kind) []agents.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agents.Snapshot
	for _, a := range s.sched.active {
		if kind == "" || a.Kind() == kind {
			out = append(out, a.Snapshot())
		}
	}
	return out
}

// TopBooks returns the best selling active titles, most copies sold first.
func (s *Simulation) TopBooks(limit int) []agents.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sched.ByKind(agents.KindBook)
	slices.SortStableFunc(ids, func(a, b string) int {
		return s.books[b].TotalSales() - s.books[a].TotalSales()
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]agents.Snapshot, len(ids))
	for i, id := range ids {
		out[i] = s.books[id].Snapshot()
	}
	return out
}

// CustomerTypeStats aggregates loyalty records by customer type.
type CustomerTypeStats struct {
	Count         int     `json:"count"`
	TotalSpent    float64 `json:"total_spent"`
	AverageSpent  float64 `json:"average_spent"`
	LoyaltyPoints int     `json:"total_loyalty_points"`
}

// CustomerInsights groups every customer seen so far by type.
func (s *Simulation) CustomerInsights() map[economy.CustomerType]CustomerTypeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[economy.CustomerType]CustomerTypeStats)
	for _, rec := range s.records {
		st := out[rec.Type]
		st.Count++
		st.TotalSpent += rec.TotalPurchases
		st.LoyaltyPoints += rec.LoyaltyPoints
		out[rec.Type] = st
	}
	for t, st := range out {
		st.TotalSpent = round2(st.TotalSpent)
		st.AverageSpent = round2(st.TotalSpent / float64(st.Count))
		out[t] = st
	}
	return out
}

// BusStats reports message bus counters at a tick boundary.
func (s *Simulation) BusStats() bus.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus.Stats()
}

// Transactions returns a copy of every checkout so far.
func (s *Simulation) Transactions() []economy.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transactions)
}

// Visits returns a copy of every finished customer visit.
func (s *Simulation) Visits() []economy.Visit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.visits)
}

// InventoryAlerts returns a copy of every reorder alert.
func (s *Simulation) InventoryAlerts() []economy.InventoryAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.alerts)
}

// RecordsSince returns the transactions and visits recorded after the first
// tx and visits of each. Offsets past the end yield nothing.
func (s *Simulation) RecordsSince(tx, visits int) ([]economy.Transaction, []economy.Visit) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx = min(max(0, tx), len(s.transactions))
	visits = min(max(0, visits), len(s.visits))
	return slices.Clone(s.transactions[tx:]), slices.Clone(s.visits[visits:])
}

// ActiveOrder returns the activation order of the last tick.
func (s *Simulation) ActiveOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched.LastOrder()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
