package agents

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/economy"
)

// Book states. A title stays listed for the whole run.
const BookListed State = "listed"

var bookMachine = &Machine{Initial: BookListed}

// Stock thresholds for LowStockAlert.
const (
	lowStockThreshold    = 5
	lowStockReorder      = 20
	outOfStockReorder    = 30
	analyticsWindow      = 30
	maxDiscount          = 0.5
	overstockDiscountCap = 0.3
)

// Book owns one catalog record. Sales and restocks go through it; nothing
// else writes the record.
type Book struct {
	fsm
	id    string
	world World
	rec   *economy.Book
	slot  int // position in the catalog, used to sample the demand field

	baseDemand float64
	demand     float64
	popularity float64
	trend      float64 // per-tick drift of base demand
	seasonal   float64

	originalPrice float64
	elasticity    float64
	discount      float64

	reorderPoint int
	maxStock     int
	reviews      float64 // 1–5
	competition  float64

	salesThisTick   int
	totalSales      int
	ticksSinceSale  int
	ticksOutOfStock int
	alertedStock    int // stock level last alerted, -1 when none pending
	belowReorder    bool

	lastTick     uint64
	demandWindow []float64
	priceWindow  []float64
	stockWindow  []int
}

// NewBook creates the owner agent for rec and subscribes it to restock
// requests.
func NewBook(w World, rec *economy.Book, slot int) *Book {
	rng := w.Rand()
	b := &Book{
		fsm:           newFSM(bookMachine),
		id:            BookID(rec.ISBN),
		world:         w,
		rec:           rec,
		slot:          slot,
		popularity:    rng.Uniform(0.1, 1.0),
		trend:         []float64{-0.01, 0, 0.01}[rng.Intn(3)],
		seasonal:      1.0,
		originalPrice: rec.Price,
		elasticity:    economy.Elasticity(rec.Category),
		reorderPoint:  rng.IntRange(5, 15),
		maxStock:      rng.IntRange(20, 50),
		competition:   rng.Uniform(0.5, 1.5),
		reviews:       rng.Uniform(3.0, 5.0),
		alertedStock:  -1,
	}
	priceFactor := math.Max(0.1, 1.0-rec.Price/100)
	b.baseDemand = economy.BaseDemand(rec.Category) * priceFactor * rng.Uniform(0.8, 1.2)
	b.demand = b.baseDemand

	w.Bus().Subscribe(b.id, bus.RestockRequest, b.handleRestock)
	return b
}

func (b *Book) ID() string     { return b.id }
func (b *Book) Kind() Kind     { return KindBook }
func (b *Book) State() State   { return b.state }
func (b *Book) Terminal() bool { return b.terminal() }

// ISBN returns the title's isbn.
func (b *Book) ISBN() string { return b.rec.ISBN }

// Stock returns the copies on hand.
func (b *Book) Stock() int { return b.rec.Stock }

// NeedsRestock reports whether stock is at or below the reorder point.
func (b *Book) NeedsRestock() bool { return b.rec.Stock <= b.reorderPoint }

// TotalSales returns copies sold this run.
func (b *Book) TotalSales() int { return b.totalSales }

// Demand returns the current demand estimate.
func (b *Book) Demand() float64 { return b.demand }

// Step handles restock requests, then refreshes demand, price, and alerts.
func (b *Book) Step(tick uint64) {
	b.world.Bus().Dispatch(b.id)

	b.lastTick = tick
	b.updateDemand(tick)
	b.updatePricing()
	b.checkReorderPoint(tick)
	b.checkStockAlert()
	b.updatePopularity()
	b.recordAnalytics()

	if b.salesThisTick == 0 {
		b.ticksSinceSale++
	} else {
		b.ticksSinceSale = 0
	}
	if b.rec.Stock == 0 {
		b.ticksOutOfStock++
	} else {
		b.ticksOutOfStock = 0
	}
	b.salesThisTick = 0
}

// ApplySale removes qty copies from stock. It fails without side effects if
// there are not enough copies.
func (b *Book) ApplySale(qty int) bool {
	if qty <= 0 || b.rec.Stock < qty {
		return false
	}
	b.rec.Stock -= qty
	b.salesThisTick += qty
	b.totalSales += qty

	rng := b.world.Rand()
	if rng.Chance(0.1) {
		b.reviews = clamp(b.reviews+rng.Uniform(-0.1, 0.2), 1.0, 5.0)
	}

	b.world.Bus().Publish(b.id, bus.InventoryUpdate, bus.Payload{
		"isbn":          b.rec.ISBN,
		"title":         b.rec.Title,
		"action":        "sale",
		"quantity_sold": qty,
		"new_stock":     b.rec.Stock,
	})
	return true
}

// Restock adds up to qty copies, capped at the shelf maximum, and returns
// how many were added.
func (b *Book) Restock(qty int) int {
	added := qty
	if room := b.maxStock - b.rec.Stock; added > room {
		added = room
	}
	if added <= 0 {
		return 0
	}
	b.rec.Stock += added

	b.world.Bus().Publish(b.id, bus.InventoryUpdate, bus.Payload{
		"isbn":           b.rec.ISBN,
		"title":          b.rec.Title,
		"action":         "restock",
		"quantity_added": added,
		"new_stock":      b.rec.Stock,
	})
	return added
}

func (b *Book) handleRestock(msg bus.Message) error {
	qty, ok := msg.Payload.Int("quantity")
	if !ok || qty <= 0 {
		return fmt.Errorf("restock %s: bad quantity %v", b.rec.ISBN, msg.Payload["quantity"])
	}
	added := b.Restock(qty)
	slog.Debug("book restocked", "isbn", b.rec.ISBN, "requested", qty, "added", added, "by", msg.From)
	return nil
}

func (b *Book) updateDemand(tick uint64) {
	b.baseDemand = clamp(b.baseDemand+b.trend, 0.1, 2.0)
	b.seasonal = economy.SeasonalFactor(b.rec.Category, b.world.Season())

	popularity := 0.5 + b.popularity*0.5

	scarcity := 1.0
	switch {
	case b.rec.Stock == 0:
		scarcity = 0
	case b.rec.Stock < b.reorderPoint:
		scarcity = 1.2
	}

	staleness := math.Max(0.5, 1.0-float64(b.ticksSinceSale)*0.05)
	reviews := b.reviews / 5.0
	competition := 1.0 / b.competition

	price := 1.0
	if b.originalPrice > 0 && b.rec.Price > 0 {
		price = math.Pow(b.rec.Price/b.originalPrice, b.elasticity)
	}

	d := b.baseDemand * b.seasonal * popularity * scarcity * staleness * reviews * competition * price
	d *= b.world.Demand().Variation(b.slot, tick)
	b.demand = math.Max(0, d)
}

func (b *Book) updatePricing() {
	switch {
	case b.demand > 1.5:
		b.discount = math.Max(0, b.discount-0.05)
	case b.demand < 0.5 && b.ticksSinceSale > 7:
		b.discount = math.Min(maxDiscount, b.discount+0.1)
	}

	switch {
	case float64(b.rec.Stock) > float64(b.maxStock)*0.8:
		b.discount = math.Min(overstockDiscountCap, b.discount+0.05)
	case b.rec.Stock < b.reorderPoint:
		b.discount = math.Max(0, b.discount-0.02)
	}

	old := b.rec.Price
	next := math.Round(b.originalPrice*(1-b.discount)*100) / 100
	if math.Abs(next-old) < 0.005 {
		return
	}
	b.rec.Price = next

	change := 0.0
	if old > 0 {
		change = (next - old) / old * 100
	}
	b.world.Bus().Publish(b.id, bus.PriceUpdate, bus.Payload{
		"isbn":              b.rec.ISBN,
		"title":             b.rec.Title,
		"old_price":         old,
		"new_price":         next,
		"price_change":      next - old,
		"change_percentage": change,
	})
}

// checkReorderPoint records an inventory alert once each time stock drops
// to the reorder point.
func (b *Book) checkReorderPoint(tick uint64) {
	if b.rec.Stock > b.reorderPoint {
		b.belowReorder = false
		return
	}
	if b.belowReorder {
		return
	}
	b.belowReorder = true
	b.world.RecordInventoryAlert(economy.InventoryAlert{
		ISBN:      b.rec.ISBN,
		Stock:     b.rec.Stock,
		Suggested: b.maxStock - b.rec.Stock + int(b.demand*10),
		Demand:    b.demand,
		Tick:      tick,
	})
}

// checkStockAlert broadcasts LowStockAlert at most once per stock level.
func (b *Book) checkStockAlert() {
	stock := b.rec.Stock
	if stock > lowStockThreshold {
		b.alertedStock = -1
		return
	}
	if stock == b.alertedStock {
		return
	}
	b.alertedStock = stock

	if stock == 0 {
		b.world.Bus().Publish(b.id, bus.LowStockAlert, bus.Payload{
			"isbn":             b.rec.ISBN,
			"title":            b.rec.Title,
			"current_stock":    0,
			"status":           "out_of_stock",
			"reorder_quantity": outOfStockReorder,
			"urgency":          "critical",
		}, bus.WithPriority(5))
		return
	}

	urgency, priority := "medium", 3
	if stock <= 2 {
		urgency, priority = "high", 4
	}
	b.world.Bus().Publish(b.id, bus.LowStockAlert, bus.Payload{
		"isbn":             b.rec.ISBN,
		"title":            b.rec.Title,
		"current_stock":    stock,
		"threshold":        lowStockThreshold,
		"reorder_quantity": lowStockReorder,
		"urgency":          urgency,
	}, bus.WithPriority(priority))
}

func (b *Book) updatePopularity() {
	if b.salesThisTick > 0 {
		b.popularity = math.Min(1.0, b.popularity+math.Min(0.1, float64(b.salesThisTick)*0.02))
	} else if b.ticksSinceSale > 3 {
		b.popularity = math.Max(0.1, b.popularity-0.01)
	}

	rng := b.world.Rand()
	if rng.Chance(0.01) {
		b.popularity = clamp(b.popularity+rng.Uniform(-0.2, 0.2), 0.1, 1.0)
	}
}

func (b *Book) recordAnalytics() {
	b.demandWindow = appendWindow(b.demandWindow, b.demand)
	b.priceWindow = appendWindow(b.priceWindow, b.rec.Price)
	b.stockWindow = appendWindow(b.stockWindow, b.rec.Stock)
}

func appendWindow[T any](w []T, v T) []T {
	w = append(w, v)
	if len(w) > analyticsWindow {
		w = w[len(w)-analyticsWindow:]
	}
	return w
}

// Forecast projects demand over the next n ticks from the current trend and
// the demand field. It draws nothing from the shared random source.
func (b *Book) Forecast(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		next := b.lastTick + uint64(i) + 1
		v := (b.demand + b.trend*float64(i)) * b.world.Demand().Variation(b.slot, next)
		out[i] = math.Max(0, v)
	}
	return out
}

// Snapshot reports the title's pricing and stock picture.
func (b *Book) Snapshot() Snapshot {
	details := map[string]any{
		"isbn":               b.rec.ISBN,
		"title":              b.rec.Title,
		"author":             b.rec.Author,
		"category":           b.rec.Category.String(),
		"current_price":      round(b.rec.Price, 2),
		"original_price":     round(b.originalPrice, 2),
		"discount_rate":      round(b.discount, 3),
		"stock_quantity":     b.rec.Stock,
		"current_demand":     round(b.demand, 3),
		"popularity_score":   round(b.popularity, 3),
		"total_sales":        b.totalSales,
		"ticks_since_sale":   b.ticksSinceSale,
		"ticks_out_of_stock": b.ticksOutOfStock,
		"reviews_score":      round(b.reviews, 2),
		"seasonal_factor":    round(b.seasonal, 2),
		"reorder_point":      b.reorderPoint,
		"needs_restock":      b.NeedsRestock(),
	}
	if len(b.demandWindow) > 0 {
		sum := 0.0
		for _, d := range b.demandWindow {
			sum += d
		}
		details["average_demand"] = round(sum/float64(len(b.demandWindow)), 3)
		lo, hi := b.priceWindow[0], b.priceWindow[0]
		for _, p := range b.priceWindow {
			lo, hi = math.Min(lo, p), math.Max(hi, p)
		}
		details["price_volatility"] = round(hi-lo, 2)
		lowest := b.stockWindow[0]
		for _, st := range b.stockWindow {
			lowest = min(lowest, st)
		}
		details["lowest_stock"] = lowest
	}
	details["stock_turnover"] = round(float64(b.totalSales)/float64(max(1, b.rec.Stock+b.totalSales)), 3)
	return Snapshot{
		ID:      b.id,
		Kind:    KindBook,
		State:   b.state,
		Details: details,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
